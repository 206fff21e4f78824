// Package hash provides a dependency-free feature-hashing embedder.
//
// Each whitespace-separated, lower-cased token is hashed with xxhash. The hash
// selects a slot (hash mod dims), a sign (even hash adds, odd subtracts) and a
// magnitude in [1, 1.5] derived from the remaining bits. The accumulated vector is
// L2-normalized unless it is all zeros.
package hash

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/lexlapax/recall/pkg/vector"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 128

// Embedder is a deterministic bag-of-words embedder.
type Embedder struct {
	dims int
}

// New creates an Embedder producing vectors of length dims.
// A non-positive dims is treated as 1.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 1
	}
	return &Embedder{dims: dims}
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed returns the embedding of text. It never fails.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *Embedder) embed(text string) []float32 {
	v := make([]float32, e.dims)
	for _, token := range strings.Fields(text) {
		h := xxhash.Sum64String(strings.ToLower(token))

		idx := h % uint64(e.dims)
		if h&1 == 0 {
			v[idx] += float32(magnitude(h))
		} else {
			v[idx] -= float32(magnitude(h))
		}
	}

	vector.Normalize(v)
	return v
}

// magnitude maps h to [1, 1.5].
func magnitude(h uint64) float64 {
	return 1 + float64(h>>1)/float64(math.MaxUint64)
}
