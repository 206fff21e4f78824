package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/pkg/model"
)

// RunHistoryStoreSuite checks the behaviour every history.Store must share.
// newStore must return an empty store; the suite closes it.
func RunHistoryStoreSuite(t *testing.T, newStore func(t *testing.T) history.Store) {
	ctx := context.Background()

	t.Run("ListInOrder", func(t *testing.T) {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.Add(ctx, history.NewEntry("m1", model.EventAdd, "", "likes tea")))
		require.NoError(t, s.Add(ctx, history.NewEntry("m2", model.EventAdd, "", "unrelated")))
		require.NoError(t, s.Add(ctx, history.NewEntry("m1", model.EventUpdate, "likes tea", "likes coffee")))
		require.NoError(t, s.Add(ctx, history.NewEntry("m1", model.EventDelete, "likes coffee", "")))

		entries, err := s.List(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, model.EventAdd, entries[0].Event)
		assert.Empty(t, entries[0].OldMemory)
		assert.Equal(t, "likes tea", entries[0].NewMemory)

		assert.Equal(t, model.EventUpdate, entries[1].Event)
		assert.Equal(t, "likes tea", entries[1].OldMemory)
		assert.Equal(t, "likes coffee", entries[1].NewMemory)
		assert.False(t, entries[1].IsDeleted)

		assert.Equal(t, model.EventDelete, entries[2].Event)
		assert.True(t, entries[2].IsDeleted)
		assert.False(t, entries[2].CreatedAt.IsZero())

		none, err := s.List(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Reset", func(t *testing.T) {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.Add(ctx, history.NewEntry("m1", model.EventAdd, "", "x")))
		require.NoError(t, s.Reset(ctx))

		entries, err := s.List(ctx, "m1")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
