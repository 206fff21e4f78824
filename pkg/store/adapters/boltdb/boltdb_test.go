package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStoreSuite(t *testing.T) {
	testutil.RunVectorStoreSuite(t, func(t *testing.T) store.VectorStore {
		s, err := Open(filepath.Join(t.TempDir(), "memories.db"), Config{Dimensions: testutil.SuiteDims})
		require.NoError(t, err)
		return s
	})
}

func TestBoltStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.db")

	s, err := Open(path, Config{Collection: "agent"})
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, testutil.Record("a", "first", model.Scope{UserID: "alice"}), []float32{1, 0, 0}))
	require.NoError(t, s.Insert(ctx, testutil.Record("b", "second", model.Scope{UserID: "alice"}), []float32{0, 1, 0}))
	require.NoError(t, s.Close())

	reopened, err := Open(path, Config{Collection: "agent"})
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	// The inferred dimension survives a reopen
	_, err = reopened.Search(ctx, []float32{1, 0}, 1, nil)
	assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))

	// New inserts keep ordering after existing ones
	require.NoError(t, reopened.Insert(ctx, testutil.Record("c", "third", model.Scope{}), []float32{1, 0, 0}))
	results, err := reopened.Search(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Record.ID)
	assert.Equal(t, "c", results[1].Record.ID)
}

func TestBoltStoreCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, _, cleanup := testutil.CreateTempBoltDB(t)
	defer cleanup()

	first, err := New(db, Config{Collection: "one", Dimensions: 2})
	require.NoError(t, err)
	second, err := New(db, Config{Collection: "two", Dimensions: 2})
	require.NoError(t, err)

	require.NoError(t, first.Insert(ctx, testutil.Record("a", "in one", model.Scope{}), []float32{1, 0}))

	got, err := second.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Closing a store built on a shared handle leaves the handle open
	require.NoError(t, first.Close())
	got, err = second.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBoltStoreDimensionConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.db")

	s, err := Open(path, Config{Dimensions: 3})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, Config{Dimensions: 4})
	assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))
}
