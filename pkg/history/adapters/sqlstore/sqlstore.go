// Package sqlstore persists memory history in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
)

//go:embed migrations
var migrations embed.FS

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// migrationsTable keeps schema versions apart from other tools sharing the database
const migrationsTable = "recall_schema_migrations"

// Store implements history.Store on a SQL database.
type Store struct {
	db *sqlx.DB
}

var _ history.Store = (*Store)(nil)

// row mirrors the memory_history table.
type row struct {
	ID        string         `db:"id"`
	MemoryID  string         `db:"memory_id"`
	OldMemory sql.NullString `db:"old_memory"`
	NewMemory sql.NullString `db:"new_memory"`
	Event     string         `db:"event"`
	CreatedAt time.Time      `db:"created_at"`
	IsDeleted bool           `db:"is_deleted"`
}

// Open connects to dsn with driver ("sqlite3" or "postgres") and migrates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.InvalidInput("unsupported history driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.InvalidInput("history dsn cannot be empty")
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping %s database: %v", errors.ErrStoreUnavailable, driver, err)
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and migrates the schema. The store owns db.
func New(db *sqlx.DB) (*Store, error) {
	if err := migrateUp(db); err != nil {
		return nil, err
	}
	log.Debug("Initialized SQL history store", "driver", db.DriverName())
	return &Store{db: db}, nil
}

func migrateUp(db *sqlx.DB) error {
	var (
		driver database.Driver
		dir    string
		err    error
	)
	switch db.DriverName() {
	case DriverSQLite:
		dir = "migrations/sqlite"
		driver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{MigrationsTable: migrationsTable})
	case DriverPostgres:
		dir = "migrations/postgres"
		driver, err = migratepg.WithInstance(db.DB, &migratepg.Config{MigrationsTable: migrationsTable})
	default:
		return errors.InvalidInput("unsupported history driver %q", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	// The migrator is not closed; closing it would close db
	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Add appends an entry.
func (s *Store) Add(ctx context.Context, entry history.Entry) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO memory_history (id, memory_id, old_memory, new_memory, event, created_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		entry.ID,
		entry.MemoryID,
		nullString(entry.OldMemory),
		nullString(entry.NewMemory),
		string(entry.Event),
		entry.CreatedAt.UTC(),
		entry.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}

// List returns the entries for memoryID, oldest first.
func (s *Store) List(ctx context.Context, memoryID string) ([]history.Entry, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, memory_id, old_memory, new_memory, event, created_at, is_deleted
		FROM memory_history
		WHERE memory_id = ?
		ORDER BY seq`), memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	out := make([]history.Entry, len(rows))
	for i, r := range rows {
		out[i] = history.Entry{
			ID:        r.ID,
			MemoryID:  r.MemoryID,
			OldMemory: r.OldMemory.String,
			NewMemory: r.NewMemory.String,
			Event:     model.EventType(r.Event),
			CreatedAt: r.CreatedAt.UTC(),
			IsDeleted: r.IsDeleted,
		}
	}
	return out, nil
}

// Reset removes every entry.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_history`); err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
