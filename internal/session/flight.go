package session

import (
	"context"
	"sync"
)

// Flight is one pending operation in the in-flight registry. Later callers
// for the same resource key attach to it instead of starting their own.
type Flight struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFlight() *Flight {
	return &Flight{done: make(chan struct{})}
}

func (f *Flight) settle(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the flight settles or the context is cancelled.
// It returns the flight's terminal error, or the context error when the
// caller gave up first.
func (f *Flight) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinFlight returns the flight registered under key. When none exists a new
// one is created and owner is true; the owner must call SettleFlight exactly
// once when the operation finishes.
func (s *Session) JoinFlight(key string) (*Flight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.inflight[key]; ok {
		return f, false
	}
	f := newFlight()
	s.inflight[key] = f
	return f, true
}

// SettleFlight resolves the flight and removes the registry entry. Removal
// is guarded against double-removal races: the entry is deleted only while
// it still maps to this flight, so a newer flight registered under the same
// key after an account switch is left untouched.
func (s *Session) SettleFlight(key string, f *Flight, err error) {
	s.mu.Lock()
	if current, ok := s.inflight[key]; ok && current == f {
		delete(s.inflight, key)
	}
	s.mu.Unlock()

	f.settle(err)
}

// InFlightCount reports the number of pending operations, for tests and
// diagnostics.
func (s *Session) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
