// Package reduxstore is the reference graphcache.Store: one mutex-held
// store.State plus a listener list notified after every Dispatch,
// adapted from the teacher's pkg/event Listen/Fire dispatcher — the
// same register-then-notify shape, scoped to one store instance instead
// of a package-level global so more than one Cache can run in the same
// process without sharing listeners.
package reduxstore

import (
	"sync"

	"github.com/shashiranjanraj/graphcache/internal/store"
)

// Listener is called with the new state after a Dispatch changes it.
type Listener func(state store.State)

// Store is the default, in-memory graphcache.Store implementation.
type Store struct {
	mu        sync.RWMutex
	state     store.State
	nextID    int
	listeners map[int]Listener
}

// New returns a Store seeded with an empty state.
func New() *Store {
	return &Store{state: store.NewState(), listeners: map[int]Listener{}}
}

// Dispatch runs action through store.Reduce and swaps the held state,
// then fires every registered listener with the new state — synchronous,
// matching pkg/event's Fire rather than FireAsync, since a listener here
// typically just needs to read GetState() moments later and would
// otherwise race the swap.
func (s *Store) Dispatch(action store.Action) {
	s.mu.Lock()
	s.state = store.Reduce(s.state, action)
	next := s.state
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
}

// GetState returns the current state. The returned value's maps are
// never mutated in place by Reduce, so it is safe to read without
// copying further.
func (s *Store) GetState() store.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange registers a listener fired after every Dispatch. Returns an
// unsubscribe function.
func (s *Store) OnChange(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
