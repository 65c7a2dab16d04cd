package session

import (
	"context"
	"sync"
)

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Load returns the entry for room or ErrNoEntry.
func (s *MemoryStore) Load(_ context.Context, room string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[room]
	if !ok {
		return nil, ErrNoEntry
	}
	return &e, nil
}

// Save replaces the entry for e.RoomName.
func (s *MemoryStore) Save(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.RoomName] = *e
	return nil
}

// Clear removes the entry for room, if any.
func (s *MemoryStore) Clear(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, room)
	return nil
}

var _ Store = (*MemoryStore)(nil)
