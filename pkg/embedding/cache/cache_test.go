package cache

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/lexlapax/recall/pkg/embedding/adapters/hash"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	inner *hash.Embedder
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func TestCacheHit(t *testing.T) {
	inner := &countingEmbedder{inner: hash.New(16)}
	e, err := New(inner, Config{MaxEntries: 100})
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	first, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 16, e.Dimensions())

	// Callers cannot corrupt the cached value
	second[0] = 42
	third, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, first[0], third[0])
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	inner := &countingEmbedder{inner: hash.New(16), err: errors.Embedding(stderrors.New("boom"))}
	e, err := New(inner, Config{})
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	_, err = e.Embed(ctx, "text")
	assert.True(t, errors.Is(err, errors.ErrEmbedding))
	e.Wait()

	_, err = e.Embed(ctx, "text")
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}
