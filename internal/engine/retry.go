package engine

import (
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// maxRetryAttempts bounds consecutive automatic reconnects. Once spent,
	// the engine settles in local mode until a manual or environmental
	// trigger resets the budget.
	maxRetryAttempts = 5

	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// retryPolicy produces the reconnect schedule min(2^n × 1s, 30s) for the
// n-th consecutive failure.
type retryPolicy struct {
	b        *backoff.ExponentialBackOff
	attempts int
}

func newRetryPolicy() *retryPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialRetryDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return &retryPolicy{b: b}
}

// Next records a failure and returns the delay before the next attempt.
// ok is false when the retry budget is exhausted.
func (p *retryPolicy) Next() (delay time.Duration, ok bool) {
	p.attempts++
	if p.attempts >= maxRetryAttempts {
		return 0, false
	}
	return p.b.NextBackOff(), true
}

// Attempts returns the number of consecutive failures recorded so far.
func (p *retryPolicy) Attempts() int {
	return p.attempts
}

// Exhausted reports whether the retry budget is spent.
func (p *retryPolicy) Exhausted() bool {
	return p.attempts >= maxRetryAttempts
}

// Reset restores the full budget and the initial delay.
func (p *retryPolicy) Reset() {
	p.attempts = 0
	p.b.Reset()
}
