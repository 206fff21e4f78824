package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/lexlapax/recall/pkg/vector"
)

// StaticEmbedder returns fixed vectors for known texts and fails for anything else.
type StaticEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dims    int
	calls   []string
	err     error
}

// NewStaticEmbedder creates an embedder that knows the given text to vector pairs.
func NewStaticEmbedder(dims int, vectors map[string][]float32) *StaticEmbedder {
	if vectors == nil {
		vectors = make(map[string][]float32)
	}
	return &StaticEmbedder{vectors: vectors, dims: dims}
}

// Set adds or replaces the vector for text.
func (e *StaticEmbedder) Set(text string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = v
}

// FailWith makes every later call return err; nil restores normal behaviour.
func (e *StaticEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns the texts embedded so far.
func (e *StaticEmbedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Dimensions returns the configured dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// Embed returns a copy of the vector registered for text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no static embedding for %q", text)
	}
	return vector.Copy(v), nil
}
