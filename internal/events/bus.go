// Package events carries session-activity notifications between the sync
// engine and in-process collaborators (status widgets, debug tooling). The
// bus is scoped to one engine instance, never global.
package events

import "sync"

// Activity announces that a session is alive, locally or from a peer.
type Activity struct {
	SessionID string
	ClientID  string
	Source    string // "local", "remote", "replay"
}

// Bus is a typed publish/subscribe channel.
type Bus struct {
	mu     sync.Mutex
	closed bool
	nextID int
	subs   map[int]func(Activity)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Activity))}
}

// Subscribe registers fn for every future Activity and returns a cancel
// function. Cancel is idempotent.
func (b *Bus) Subscribe(fn func(Activity)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers a to every subscriber. Subscribers run on the caller's
// goroutine, outside the bus lock.
func (b *Bus) Publish(a Activity) {
	b.mu.Lock()
	fns := make([]func(Activity), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(a)
	}
}

// Close drops all subscribers. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]func(Activity))
}
