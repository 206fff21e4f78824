// Package cache wraps an Embedder with an in-process ristretto cache.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/lexlapax/recall/pkg/embedding"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/vector"
)

// DefaultMaxEntries bounds the cache when Config.MaxEntries is zero.
const DefaultMaxEntries = 10000

// Config holds configuration for the embedding cache.
type Config struct {
	// MaxEntries is the approximate number of embeddings kept
	MaxEntries int64
}

// Embedder caches the results of an underlying Embedder keyed by input text.
type Embedder struct {
	next  embedding.Embedder
	cache *ristretto.Cache
}

var _ embedding.Embedder = (*Embedder)(nil)

// New wraps next with a cache.
func New(next embedding.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Embedder{next: next, cache: c}, nil
}

// Dimensions returns the dimensions of the wrapped embedder.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Embed returns a cached embedding for text, computing it on a miss.
// Errors are not cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return vector.Copy(v.([]float32)), nil
	}

	emb, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if !e.cache.Set(text, vector.Copy(emb), 1) {
		log.Debug("Embedding cache dropped entry", "chars", len(text))
	}
	return emb, nil
}

// Wait blocks until pending cache writes are visible.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
