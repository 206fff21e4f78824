package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteHistorySuite(t *testing.T) {
	testutil.RunHistoryStoreSuite(t, func(t *testing.T) history.Store {
		s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		return s
	})
}

func TestPostgresHistorySuite(t *testing.T) {
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("Skipping postgres history tests: TEST_DB_URL environment variable not set")
	}

	testutil.RunHistoryStoreSuite(t, func(t *testing.T) history.Store {
		s, err := Open(context.Background(), DriverPostgres, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Reset(context.Background()))
		return s
	})
}

func TestOpen_InvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "mysql", "dsn")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = Open(ctx, DriverSQLite, "")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, history.NewEntry("m1", model.EventAdd, "", "kept")))
	require.NoError(t, first.Close())

	second, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].NewMemory)

	var version int
	require.NoError(t, second.db.Get(&version, fmt.Sprintf("SELECT version FROM %s", migrationsTable)))
	assert.Equal(t, 1, version)
}

func TestNewWithSharedHandle(t *testing.T) {
	db, err := sqlx.Open(DriverSQLite, filepath.Join(t.TempDir(), uuid.NewString()+".db"))
	require.NoError(t, err)

	s, err := New(db)
	require.NoError(t, err)
	defer s.Close()

	// Migration leaves the handle usable
	require.NoError(t, s.Add(context.Background(), history.NewEntry("m1", model.EventAdd, "", "x")))
}
