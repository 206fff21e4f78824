package inmemory

import (
	"context"
	"sync"

	"github.com/lexlapax/recall/pkg/history"
)

// Store keeps history entries in memory.
type Store struct {
	mu      sync.RWMutex
	entries []history.Entry
}

var _ history.Store = (*Store)(nil)

// New creates an empty history store.
func New() *Store {
	return &Store{}
}

// Add appends an entry.
func (s *Store) Add(_ context.Context, entry history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List returns the entries for memoryID in the order they were added.
func (s *Store) List(_ context.Context, memoryID string) ([]history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []history.Entry
	for _, e := range s.entries {
		if e.MemoryID == memoryID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reset removes every entry.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
