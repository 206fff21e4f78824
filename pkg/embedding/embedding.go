// Package embedding defines the contract for turning text into vectors.
package embedding

import (
	"context"
)

// Embedder converts text into a fixed-length vector.
// Implementations must be deterministic for equal inputs and safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding of text. Its length equals Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
