// Package inmemory is the in-process reference vector index.
package inmemory

import (
	"context"
	"sync"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/pkg/vector"
)

type entry struct {
	record    model.MemoryRecord
	embedding []float32
	seq       uint64
}

// Store keeps records and embeddings in memory, in insertion order.
type Store struct {
	mu      sync.RWMutex
	dims    int
	entries []*entry
	byID    map[string]*entry
	nextSeq uint64
}

var _ store.VectorStore = (*Store)(nil)

// New creates an empty store for embeddings of length dims.
// A non-positive dims is fixed by the first insert.
func New(dims int) *Store {
	return &Store{
		dims: dims,
		byID: make(map[string]*entry),
	}
}

// Insert stores a record with its embedding.
func (s *Store) Insert(ctx context.Context, record model.MemoryRecord, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDims(embedding); err != nil {
		return err
	}
	if _, exists := s.byID[record.ID]; exists {
		return errors.InvalidInput("memory with id %s already exists", record.ID)
	}
	if s.dims <= 0 {
		s.dims = len(embedding)
	}

	e := &entry{
		record:    record.Clone(),
		embedding: vector.Copy(embedding),
		seq:       s.nextSeq,
	}
	s.nextSeq++
	s.entries = append(s.entries, e)
	s.byID[record.ID] = e

	log.DebugContext(ctx, "Inserted memory", "id", record.ID)
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return errors.NotFound(id)
	}
	delete(s.byID, id)
	for i, e := range s.entries {
		if e.record.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}

	log.DebugContext(ctx, "Deleted memory", "id", id)
	return nil
}

// Get returns the record with id, or nil when absent.
func (s *Store) Get(_ context.Context, id string) (*model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	rec := e.record.Clone()
	return &rec, nil
}

// List returns records matching filters in insertion order.
func (s *Store) List(_ context.Context, filters *filter.Filters, limit int) ([]model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.MemoryRecord
	for _, e := range s.entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		ok, err := filter.Match(filters, e.record)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e.record.Clone())
		}
	}
	return out, nil
}

// Search ranks matching records by cosine similarity to query.
func (s *Store) Search(_ context.Context, query []float32, k int, filters *filter.Filters) ([]model.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkDims(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	candidates := make([]store.Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		ok, err := filter.Match(filters, e.record)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		score, err := vector.Cosine(query, e.embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, store.Candidate{
			Memory: model.ScoredMemory{Record: e.record.Clone(), Score: score},
			Seq:    e.seq,
		})
	}

	return store.Rank(candidates, k), nil
}

// Update replaces the stored record and optionally its embedding.
func (s *Store) Update(ctx context.Context, id string, embedding []float32, record model.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return errors.NotFound(id)
	}
	if embedding != nil {
		if err := s.checkDims(embedding); err != nil {
			return err
		}
		e.embedding = vector.Copy(embedding)
	}
	e.record = store.ApplyUpdate(e.record, record)

	log.DebugContext(ctx, "Updated memory", "id", id, "reembedded", embedding != nil)
	return nil
}

// DeleteAll removes every record matching filters.
func (s *Store) DeleteAll(ctx context.Context, filters *filter.Filters) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]bool, len(s.entries))
	for i, e := range s.entries {
		ok, err := filter.Match(filters, e.record)
		if err != nil {
			return 0, err
		}
		matched[i] = ok
	}

	kept := make([]*entry, 0, len(s.entries))
	removed := 0
	for i, e := range s.entries {
		if matched[i] {
			delete(s.byID, e.record.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	log.DebugContext(ctx, "Deleted memories", "count", removed)
	return removed, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) checkDims(v []float32) error {
	return vector.CheckDims(s.dims, v)
}
