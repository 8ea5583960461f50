package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dancode-188/synckit/sdk/go/internal/events"
	"github.com/Dancode-188/synckit/sdk/go/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "synckit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewTracker(st, events.NewBus(), nil)
}

func TestSessionID_Idempotent(t *testing.T) {
	tr := newTestTracker(t)

	first, err := tr.SessionID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	for i := 0; i < 10; i++ {
		id, err := tr.SessionID()
		require.NoError(t, err)
		assert.Equal(t, first, id)
	}
}

func TestSessionID_SurvivesTrackerRestart(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "synckit.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	first, err := NewTracker(st, events.NewBus(), nil).SessionID()
	require.NoError(t, err)

	second, err := NewTracker(st, events.NewBus(), nil).SessionID()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSanitizeSessionID(t *testing.T) {
	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"valid uuid style", "123e4567-e89b-42d3-a456-426614174000", "123e4567-e89b-42d3-a456-426614174000"},
		{"valid with colon and dot", "session:v1.2_x", "session:v1.2_x"},
		{"surrounding whitespace", "  abc-123  ", "abc-123"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
		{"embedded space", "abc 123", ""},
		{"control character", "abc\x00def", ""},
		{"too long", string(long), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeSessionID(tt.raw))
		})
	}
}

func TestEmitActivity_PublishesAndRecordsSelf(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "synckit.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	bus := events.NewBus()
	var got []events.Activity
	bus.Subscribe(func(a events.Activity) { got = append(got, a) })

	tr := NewTracker(st, bus, nil)
	require.NoError(t, tr.EmitActivity("client-1", "local"))

	require.Len(t, got, 1)
	assert.Equal(t, "client-1", got[0].ClientID)
	assert.Equal(t, "local", got[0].Source)

	sessions := tr.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsLocal)
	assert.Equal(t, "client-1", sessions[0].ClientID)
}

func TestUpsert_PrunesStalePeers(t *testing.T) {
	tr := newTestTracker(t)

	base := time.Now()
	tr.now = func() time.Time { return base }

	_, err := tr.SessionID()
	require.NoError(t, err)
	require.NoError(t, tr.EmitActivity("client-local", "local"))

	tr.Upsert("peer-stale", "client-a", "remote")
	tr.Upsert("peer-fresh", "client-b", "remote")

	// Advance past the TTL and touch an unrelated peer: the stale one must
	// disappear on that call alone.
	tr.now = func() time.Time { return base.Add(peerTTL + time.Second) }
	tr.Upsert("peer-fresh", "client-b", "remote")

	var ids []string
	for _, p := range tr.Sessions() {
		ids = append(ids, p.SessionID)
	}
	assert.NotContains(t, ids, "peer-stale")
	assert.Contains(t, ids, "peer-fresh")
}

func TestUpsert_NeverPrunesLocalSession(t *testing.T) {
	tr := newTestTracker(t)

	base := time.Now()
	tr.now = func() time.Time { return base }
	require.NoError(t, tr.EmitActivity("client-local", "local"))

	tr.now = func() time.Time { return base.Add(time.Hour) }
	tr.Upsert("peer-1", "client-a", "remote")

	sessions := tr.Sessions()
	require.NotEmpty(t, sessions)
	assert.True(t, sessions[0].IsLocal)
}

func TestUpsert_DropsMalformedIdentifiers(t *testing.T) {
	tr := newTestTracker(t)

	tr.Upsert("bad id with spaces", "client-a", "remote")
	tr.Upsert("", "client-b", "remote")

	assert.Empty(t, tr.Sessions())
}

func TestSessions_LocalFirstThenLabel(t *testing.T) {
	tr := newTestTracker(t)
	tr.SetLabel("zz-local-user")

	require.NoError(t, tr.EmitActivity("client-local", "local"))
	tr.Upsert("bbbbbbbb-peer", "client-b", "remote")
	tr.Upsert("aaaaaaaa-peer", "client-a", "remote")

	sessions := tr.Sessions()
	require.Len(t, sessions, 3)
	// Local sorts first even though its label sorts last.
	assert.True(t, sessions[0].IsLocal)
	assert.Equal(t, "zz-local-user", sessions[0].Label)
	assert.Equal(t, "aaaaaaaa", sessions[1].Label)
	assert.Equal(t, "bbbbbbbb", sessions[2].Label)
}
