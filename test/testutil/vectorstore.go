package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
)

// SuiteDims is the embedding length used by RunVectorStoreSuite.
const SuiteDims = 4

// StoreFactory returns an empty store for SuiteDims-length embeddings.
// The store is closed by the suite.
type StoreFactory func(t *testing.T) store.VectorStore

// Record builds a record with a fixed creation time for assertions.
func Record(id, content string, scope model.Scope) model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:        id,
		Content:   content,
		Metadata:  map[string]any{"source": "test"},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	scope.Apply(&rec)
	return rec
}

// RunVectorStoreSuite checks the behaviour every store.VectorStore must share.
func RunVectorStoreSuite(t *testing.T, newStore StoreFactory) {
	ctx := context.Background()

	open := func(t *testing.T) store.VectorStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("InsertGetRoundTrip", func(t *testing.T) {
		s := open(t)
		rec := Record("a", "likes tea", model.Scope{UserID: "alice", AgentID: "bot"})
		require.NoError(t, s.Insert(ctx, rec, []float32{1, 0, 0, 0}))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "likes tea", got.Content)
		assert.Equal(t, "alice", got.UserID)
		assert.Equal(t, "bot", got.AgentID)
		assert.Empty(t, got.RunID)
		assert.Equal(t, "test", got.Metadata["source"])
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

		// Returned records are copies
		got.Metadata["source"] = "mutated"
		again, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "test", again.Metadata["source"])
	})

	t.Run("NumericMetadataRoundTrip", func(t *testing.T) {
		s := open(t)
		rec := Record("n", "counts things", model.Scope{UserID: "alice"})
		rec.Metadata = map[string]any{"count": 3, "ratio": 0.25, "tags": []any{"a"}}
		require.NoError(t, s.Insert(ctx, rec, []float32{1, 0, 0, 0}))

		got, err := s.Get(ctx, "n")
		require.NoError(t, err)
		require.NotNil(t, got)
		// Integers may come back as float64; the value is kept
		assert.EqualValues(t, 3, got.Metadata["count"])
		assert.EqualValues(t, 0.25, got.Metadata["ratio"])
		assert.Equal(t, []any{"a"}, got.Metadata["tags"])

		matches, err := s.List(ctx, filter.All(filter.Eq("count", 3)), 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "n", matches[0].ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		got, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DuplicateInsert", func(t *testing.T) {
		s := open(t)
		rec := Record("a", "one", model.Scope{UserID: "u"})
		require.NoError(t, s.Insert(ctx, rec, []float32{1, 0, 0, 0}))
		err := s.Insert(ctx, rec, []float32{0, 1, 0, 0})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		s := open(t)
		err := s.Insert(ctx, Record("a", "one", model.Scope{}), []float32{1, 0})
		var dm *errors.DimensionMismatchError
		require.True(t, errors.As(err, &dm), "got %v", err)
		assert.Equal(t, SuiteDims, dm.Expected)
		assert.Equal(t, 2, dm.Actual)

		require.NoError(t, s.Insert(ctx, Record("b", "two", model.Scope{}), []float32{1, 0, 0, 0}))
		_, err = s.Search(ctx, []float32{1, 0, 0}, 5, nil)
		assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))
	})

	t.Run("DeleteTwice", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, Record("a", "one", model.Scope{}), []float32{1, 0, 0, 0}))
		require.NoError(t, s.Delete(ctx, "a"))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, got)

		err = s.Delete(ctx, "a")
		var nf *errors.NotFoundError
		require.True(t, errors.As(err, &nf), "got %v", err)
		assert.Equal(t, "a", nf.ID)
	})

	t.Run("SearchOrdering", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, Record("far", "far", model.Scope{}), []float32{0, 1, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("tie1", "tie one", model.Scope{}), []float32{1, 1, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("exact", "exact", model.Scope{}), []float32{1, 0, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("tie2", "tie two", model.Scope{}), []float32{2, 2, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("zero", "zero", model.Scope{}), []float32{0, 0, 0, 0}))

		results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 5)

		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Record.ID
		}
		assert.Equal(t, []string{"exact", "tie1", "tie2", "far", "zero"}, ids)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		assert.InDelta(t, results[1].Score, results[2].Score, 1e-6)
		assert.InDelta(t, 0.0, results[4].Score, 1e-6)

		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}

		top, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "exact", top[0].Record.ID)
		assert.Equal(t, "tie1", top[1].Record.ID)

		none, err := s.Search(ctx, []float32{1, 0, 0, 0}, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("SearchEmptyStore", func(t *testing.T) {
		s := open(t)
		results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("SearchWithFilters", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, Record("a", "alice one", model.Scope{UserID: "alice"}), []float32{1, 0, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("b", "bob one", model.Scope{UserID: "bob"}), []float32{1, 0, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("c", "alice two", model.Scope{UserID: "alice", RunID: "r1"}), []float32{0, 1, 0, 0}))

		results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 10, filter.ForScope(model.Scope{UserID: "alice"}))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a", results[0].Record.ID)
		assert.Equal(t, "c", results[1].Record.ID)

		results, err = s.Search(ctx, []float32{1, 0, 0, 0}, 10, &filter.Filters{Expression: `content.startsWith("bob")`})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].Record.ID)
	})

	t.Run("ListOrderAndLimit", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 5; i++ {
			scope := model.Scope{UserID: "alice"}
			if i%2 == 1 {
				scope.UserID = "bob"
			}
			require.NoError(t, s.Insert(ctx, Record(fmt.Sprintf("m%d", i), fmt.Sprintf("memory %d", i), scope), []float32{float32(i + 1), 1, 0, 0}))
		}

		all, err := s.List(ctx, nil, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, rec := range all {
			assert.Equal(t, fmt.Sprintf("m%d", i), rec.ID)
		}

		limited, err := s.List(ctx, nil, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "m1", limited[1].ID)

		alice, err := s.List(ctx, filter.ForScope(model.Scope{UserID: "alice"}), 0)
		require.NoError(t, err)
		require.Len(t, alice, 3)
		assert.Equal(t, "m4", alice[2].ID)

		bob, err := s.List(ctx, filter.All(filter.Eq(filter.FieldUserID, "bob")), 1)
		require.NoError(t, err)
		require.Len(t, bob, 1)
		assert.Equal(t, "m1", bob[0].ID)
	})

	t.Run("Update", func(t *testing.T) {
		s := open(t)
		rec := Record("a", "likes tea", model.Scope{UserID: "alice"})
		require.NoError(t, s.Insert(ctx, rec, []float32{1, 0, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("b", "other", model.Scope{UserID: "alice"}), []float32{0, 1, 0, 0}))

		next := rec
		next.ID = "ignored"
		next.CreatedAt = time.Now()
		next.Content = "likes coffee"
		next.UpdatedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.Update(ctx, "a", nil, next))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "a", got.ID)
		assert.Equal(t, "likes coffee", got.Content)
		assert.Equal(t, "alice", got.UserID)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "creation time is immutable")
		assert.True(t, next.UpdatedAt.Equal(got.UpdatedAt))

		ignored, err := s.Get(ctx, "ignored")
		require.NoError(t, err)
		assert.Nil(t, ignored)

		// Nil embedding keeps the stored vector
		results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Record.ID)

		// A new embedding changes ranking
		require.NoError(t, s.Update(ctx, "a", []float32{0, 0, 1, 0}, next))
		results, err = s.Search(ctx, []float32{0, 0, 1, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Record.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)

		err = s.Update(ctx, "missing", nil, next)
		assert.True(t, errors.Is(err, errors.ErrNotFound))

		err = s.Update(ctx, "a", []float32{1}, next)
		assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))
	})

	t.Run("DeleteAll", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, Record("a", "one", model.Scope{UserID: "alice"}), []float32{1, 0, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("b", "two", model.Scope{UserID: "bob"}), []float32{1, 0, 0, 0}))
		require.NoError(t, s.Insert(ctx, Record("c", "three", model.Scope{UserID: "alice"}), []float32{1, 0, 0, 0}))

		n, err := s.DeleteAll(ctx, filter.ForScope(model.Scope{UserID: "alice"}))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rest, err := s.List(ctx, nil, 0)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "b", rest[0].ID)

		n, err = s.DeleteAll(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		rest, err = s.List(ctx, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, rest)

		// The store stays usable
		require.NoError(t, s.Insert(ctx, Record("d", "four", model.Scope{}), []float32{1, 0, 0, 0}))
		got, err := s.Get(ctx, "d")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("ConcurrentInserts", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Insert(ctx, Record(fmt.Sprintf("c%d", i), "concurrent", model.Scope{}), []float32{1, float32(i), 0, 0})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		all, err := s.List(ctx, nil, 0)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})
}
