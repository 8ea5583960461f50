// Package session tracks client identity: the durable per-client session id
// and the set of peer sessions currently active for the same user.
package session

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dancode-188/synckit/sdk/go/internal/events"
	"github.com/Dancode-188/synckit/sdk/go/internal/store"
)

// peerTTL is how long a peer session stays listed without fresh activity.
const peerTTL = 5 * time.Minute

const maxIdentifierLength = 128

// Peer is one active session for the current user, local or remote.
type Peer struct {
	SessionID string
	Label     string
	ClientID  string
	IsLocal   bool
	LastSeen  time.Time
}

// Tracker owns the local session identity and the peer map. Pruning is
// eager: every upsert runs the TTL pass, so stale peers disappear even when
// they never announce again.
type Tracker struct {
	st     *store.Store
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	id    string
	label string
	peers map[string]*Peer
}

// NewTracker creates a tracker persisting identity through st and announcing
// activity on bus.
func NewTracker(st *store.Store, bus *events.Bus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		st:     st,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		peers:  make(map[string]*Peer),
	}
}

// SessionID returns the stable session id, creating and persisting it on
// first call. Once created it is never regenerated.
func (t *Tracker) SessionID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.id != "" {
		return t.id, nil
	}

	stored, err := t.st.SessionID()
	if err == nil {
		if id := SanitizeSessionID(stored); id != "" {
			t.id = id
			return t.id, nil
		}
		t.logger.Warn("stored session id malformed, regenerating", slog.String("raw", stored))
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id := uuid.NewString()
	if err := t.st.SetSessionID(id); err != nil {
		return "", err
	}
	t.id = id
	t.logger.Info("created session id", slog.String("sessionId", id))
	return t.id, nil
}

// SetLabel sets the display label for the local session (typically the user
// id carried by the auth token).
func (t *Tracker) SetLabel(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label = strings.TrimSpace(label)
}

// SanitizeSessionID normalizes a session or client identifier received from
// a peer or from storage. Malformed input yields "" rather than an error.
func SanitizeSessionID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > maxIdentifierLength {
		return ""
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == ':' || r == '.':
		default:
			return ""
		}
	}
	return s
}

// EmitActivity broadcasts local presence to in-process listeners and records
// it in the peer map. Purely local: no network side effects.
func (t *Tracker) EmitActivity(clientID, source string) error {
	id, err := t.SessionID()
	if err != nil {
		return err
	}
	t.Upsert(id, clientID, source)
	t.bus.Publish(events.Activity{SessionID: id, ClientID: clientID, Source: source})
	return nil
}

// Upsert updates the peer record for sessionID and prunes every peer whose
// last activity is older than peerTTL. The local session is never pruned.
func (t *Tracker) Upsert(sessionID, clientID, source string) {
	sid := SanitizeSessionID(sessionID)
	if sid == "" {
		t.logger.Debug("dropping activity with malformed session id",
			slog.String("raw", sessionID),
			slog.String("source", source))
		return
	}
	cid := SanitizeSessionID(clientID) // same identifier grammar

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	isLocal := sid == t.id

	p, ok := t.peers[sid]
	if !ok {
		p = &Peer{SessionID: sid}
		t.peers[sid] = p
	}
	p.IsLocal = isLocal
	p.LastSeen = now
	if cid != "" {
		p.ClientID = cid
	}
	p.Label = t.labelFor(p)

	for id, peer := range t.peers {
		if !peer.IsLocal && now.Sub(peer.LastSeen) > peerTTL {
			delete(t.peers, id)
		}
	}
}

func (t *Tracker) labelFor(p *Peer) string {
	if p.IsLocal && t.label != "" {
		return t.label
	}
	if p.Label != "" && p.Label != shortID(p.SessionID) {
		return p.Label
	}
	return shortID(p.SessionID)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Sessions lists active sessions: the local session first, the rest ordered
// by label, session id as tiebreak.
func (t *Tracker) Sessions() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsLocal != out[j].IsLocal {
			return out[i].IsLocal
		}
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}
