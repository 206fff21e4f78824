// Package store defines the vector index that owns memory records and their embeddings.
package store

import (
	"context"
	"sort"

	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/model"
)

// VectorStore is the interface that all vector index adapters must implement.
//
// Search ranks by cosine similarity, highest first, with ties kept in insertion
// order. Records returned to callers are copies.
//
// Persistent adapters (boltdb, chromemgo, pgvector) keep metadata as JSON, so
// metadata read back holds JSON types: numbers come back as float64, nested
// objects as map[string]any and arrays as []any. The in-memory adapter returns
// the values as stored. Compare numeric metadata by value, not by type.
type VectorStore interface {
	// Insert stores a record with its embedding.
	// It fails with ErrInvalidInput when the id already exists and with
	// ErrDimensionMismatch when the embedding has the wrong length.
	Insert(ctx context.Context, record model.MemoryRecord, embedding []float32) error

	// Delete removes a record. It fails with ErrNotFound when the id is absent.
	Delete(ctx context.Context, id string) error

	// Get returns the record with id, or nil when absent.
	Get(ctx context.Context, id string) (*model.MemoryRecord, error)

	// List returns records matching filters in insertion order.
	// A non-positive limit returns all matches.
	List(ctx context.Context, filters *filter.Filters, limit int) ([]model.MemoryRecord, error)

	// Search returns at most k records matching filters ranked by similarity to query.
	Search(ctx context.Context, query []float32, k int, filters *filter.Filters) ([]model.ScoredMemory, error)

	// Update replaces the content, metadata and scope of record.ID, keeping its
	// stored id and creation time. A nil embedding keeps the stored one.
	// It fails with ErrNotFound when the id is absent.
	Update(ctx context.Context, id string, embedding []float32, record model.MemoryRecord) error

	// DeleteAll removes every record matching filters and returns how many were removed.
	DeleteAll(ctx context.Context, filters *filter.Filters) (int, error)

	// Close releases the resources held by the store.
	Close() error
}

// Candidate is a record and its score during a brute-force search.
type Candidate struct {
	Memory model.ScoredMemory
	Seq    uint64
}

// Rank sorts candidates by descending score, then ascending insertion sequence,
// and returns the first k.
func Rank(candidates []Candidate, k int) []model.ScoredMemory {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Memory.Score != candidates[j].Memory.Score {
			return candidates[i].Memory.Score > candidates[j].Memory.Score
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}

	out := make([]model.ScoredMemory, len(candidates))
	for i, c := range candidates {
		out[i] = c.Memory
	}
	return out
}

// ApplyUpdate returns stored with the mutable fields of next applied.
func ApplyUpdate(stored, next model.MemoryRecord) model.MemoryRecord {
	out := next.Clone()
	out.ID = stored.ID
	out.CreatedAt = stored.CreatedAt
	return out
}
