// Package history provides the relay's bounded, in-memory event history.
package history

import (
	"sync"

	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/events"
)

// Store retains the most recent events in arrival order. Once it holds
// capacity events, each Append evicts exactly one oldest event.
type Store struct {
	mu       sync.RWMutex
	events   []events.Event
	capacity int
	version  uint64
}

// New creates a store. A capacity of zero or less selects the default of 100.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = constants.DefaultHistoryCapacity
	}
	return &Store{
		events:   make([]events.Event, 0, capacity),
		capacity: capacity,
	}
}

// Append adds e at the back, evicting the oldest event when over capacity.
func (s *Store) Append(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.capacity {
		// Shift in place so the backing array never grows past capacity.
		copy(s.events, s.events[1:])
		s.events[len(s.events)-1] = e
	} else {
		s.events = append(s.events, e)
	}
	s.version++
}

// Snapshot returns a copy of the history, oldest first.
func (s *Store) Snapshot() []events.Event {
	list, _ := s.SnapshotVersion()
	return list
}

// SnapshotVersion returns a copy of the history together with the version
// it was taken at. Both are read under the same lock.
func (s *Store) SnapshotVersion() ([]events.Event, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out, s.version
}

// Clear empties the store. Clearing an empty store is a no-op apart from
// the version bump.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]events.Event, 0, s.capacity)
	s.version++
}

// Len returns the number of retained events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Capacity returns the maximum number of retained events.
func (s *Store) Capacity() int {
	return s.capacity
}

// Version returns a counter that changes on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
