package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Schedule(t *testing.T) {
	p := newRetryPolicy()

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, wantDelay := range want {
		delay, ok := p.Next()
		require.True(t, ok, "attempt %d", i+1)
		assert.Equal(t, wantDelay, delay)
	}
	assert.False(t, p.Exhausted(), "budget lasts through the fourth delay")

	_, ok := p.Next()
	assert.False(t, ok, "fifth attempt exceeds the budget")
	assert.True(t, p.Exhausted())

	p.Reset()
	assert.False(t, p.Exhausted())
	delay, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}
