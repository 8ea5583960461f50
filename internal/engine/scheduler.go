package engine

import (
	"sync"
	"time"
)

// scheduler owns every timer the engine creates (retry backoff, workspace
// settle delay). Stop guarantees nothing fires after teardown, no matter how
// many retry cycles ran.
type scheduler interface {
	// Schedule runs fn after d on its own goroutine. The returned cancel is
	// idempotent and safe to call after the task fired.
	Schedule(d time.Duration, fn func()) (cancel func())
	// Stop cancels every outstanding task and rejects future ones.
	Stop()
}

type timerScheduler struct {
	mu      sync.Mutex
	stopped bool
	nextID  int
	timers  map[int]*time.Timer
}

func newTimerScheduler() *timerScheduler {
	return &timerScheduler{timers: make(map[int]*time.Timer)}
}

func (s *timerScheduler) Schedule(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return func() {}
	}

	id := s.nextID
	s.nextID++

	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		stopped := s.stopped
		s.mu.Unlock()
		if live && !stopped {
			fn()
		}
	})
	s.timers[id] = timer

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
	}
}

func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
