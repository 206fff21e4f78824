package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

// CreateTempBoltDB opens a BoltDB database in a per-test temporary directory.
// It returns the database, its file path and a cleanup function closing it.
func CreateTempBoltDB(t *testing.T) (*bolt.DB, string, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	require.NoError(t, err)

	return db, dbPath, func() { _ = db.Close() }
}
