// Package pgvector stores memories in PostgreSQL using the pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/pkg/vector"
)

// PgvectorConfig contains the configuration for a pgvector store
type PgvectorConfig struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// TableName is the name of the table to use
	TableName string

	// DimensionSize is the size of vector embeddings
	DimensionSize int
}

// PgvectorAdapter implements store.VectorStore using PostgreSQL with pgvector.
type PgvectorAdapter struct {
	db            *pgxpool.Pool
	table         string
	dimensionSize int
}

var _ store.VectorStore = (*PgvectorAdapter)(nil)

// NewPgvectorAdapter connects to PostgreSQL and prepares the table.
func NewPgvectorAdapter(ctx context.Context, config PgvectorConfig) (*PgvectorAdapter, error) {
	if config.ConnectionString == "" {
		return nil, errors.InvalidInput("connection string cannot be empty")
	}
	if config.DimensionSize <= 0 {
		return nil, errors.InvalidInput("pgvector requires a positive dimension size")
	}
	if config.TableName == "" {
		config.TableName = "memories"
	}

	// The extension must exist before connections can register its types
	if err := ensureExtension(ctx, config.ConnectionString); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping PostgreSQL: %v", errors.ErrStoreUnavailable, err)
	}

	a := &PgvectorAdapter{
		db:            db,
		table:         pgx.Identifier{config.TableName}.Sanitize(),
		dimensionSize: config.DimensionSize,
	}

	if err := a.initializeTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize pgvector table: %w", err)
	}

	log.Debug("Initialized pgvector store", "table", config.TableName, "dimensions", config.DimensionSize)
	return a, nil
}

func ensureExtension(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to PostgreSQL: %v", errors.ErrStoreUnavailable, err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create pgvector extension: %w", err)
	}
	return nil
}

// initializeTable creates the table and indexes if they don't exist
func (a *PgvectorAdapter) initializeTable(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				seq BIGSERIAL NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				user_id TEXT NOT NULL DEFAULT '',
				agent_id TEXT NOT NULL DEFAULT '',
				run_id TEXT NOT NULL DEFAULT '',
				embedding VECTOR(%d) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ
			)`, a.table, a.dimensionSize),
		a.indexSQL("seq", "seq"),
		a.indexSQL("user_id", "user_id"),
		a.indexSQL("agent_id", "agent_id"),
		a.indexSQL("run_id", "run_id"),
	}

	for _, stmt := range statements {
		if _, err := a.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (a *PgvectorAdapter) indexSQL(suffix, column string) string {
	name := pgx.Identifier{strings.Trim(a.table, `"`) + "_" + suffix + "_idx"}.Sanitize()
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, a.table, column)
}

// DB returns the underlying connection pool (used for testing)
func (a *PgvectorAdapter) DB() *pgxpool.Pool {
	return a.db
}

// Close closes the connection pool
func (a *PgvectorAdapter) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

// Insert stores a record with its embedding.
func (a *PgvectorAdapter) Insert(ctx context.Context, record model.MemoryRecord, embedding []float32) error {
	if err := vector.CheckDims(a.dimensionSize, embedding); err != nil {
		return err
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	tag, err := a.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, user_id, agent_id, run_id, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, a.table),
		record.ID,
		record.Content,
		metadata,
		record.UserID,
		record.AgentID,
		record.RunID,
		pgv.NewVector(embedding),
		record.CreatedAt,
		nullTime(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.InvalidInput("memory with id %s already exists", record.ID)
	}

	log.DebugContext(ctx, "Stored record in pgvector", "id", record.ID, "table", a.table)
	return nil
}

// Delete removes a record.
func (a *PgvectorAdapter) Delete(ctx context.Context, id string) error {
	tag, err := a.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, a.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound(id)
	}

	log.DebugContext(ctx, "Deleted record from pgvector", "id", id, "table", a.table)
	return nil
}

// Get returns the record with id, or nil when absent.
func (a *PgvectorAdapter) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	rows, err := a.db.Query(ctx, fmt.Sprintf(`
		SELECT %s, 0::float8 AS score FROM %s WHERE id = $1
	`, recordColumns, a.table), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query by id: %w", err)
	}

	results, err := collectScored(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0].Record, nil
}

// List returns records matching filters in insertion order.
func (a *PgvectorAdapter) List(ctx context.Context, filters *filter.Filters, limit int) ([]model.MemoryRecord, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	where, args, complete := buildWhereClause(filters, 0)
	query := fmt.Sprintf(`SELECT %s, 0::float8 AS score FROM %s WHERE %s ORDER BY seq`, recordColumns, a.table, where)
	if complete && limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	scored, err := collectScored(rows)
	if err != nil {
		return nil, err
	}

	var out []model.MemoryRecord
	for _, s := range scored {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !complete {
			ok, err := filter.Match(filters, s.Record)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, s.Record)
	}
	return out, nil
}

// Search ranks matching records by cosine similarity to query.
func (a *PgvectorAdapter) Search(ctx context.Context, query []float32, k int, filters *filter.Filters) ([]model.ScoredMemory, error) {
	if err := vector.CheckDims(a.dimensionSize, query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	where, args, complete := buildWhereClause(filters, 1)
	args = append([]any{pgv.NewVector(query)}, args...)

	sql := fmt.Sprintf(`
		SELECT %s,
			CASE WHEN vector_norm(embedding) = 0 OR vector_norm($1::vector) = 0 THEN 0
				ELSE 1 - (embedding <=> $1::vector)
			END AS score
		FROM %s
		WHERE %s
		ORDER BY score DESC, seq ASC
	`, recordColumns, a.table, where)
	if complete {
		sql += fmt.Sprintf(" LIMIT %d", k)
	}

	rows, err := a.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform semantic search: %w", err)
	}
	scored, err := collectScored(rows)
	if err != nil {
		return nil, err
	}

	if complete {
		return scored, nil
	}

	out := make([]model.ScoredMemory, 0, k)
	for _, s := range scored {
		if len(out) >= k {
			break
		}
		ok, err := filter.Match(filters, s.Record)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Update replaces the stored record and optionally its embedding.
func (a *PgvectorAdapter) Update(ctx context.Context, id string, embedding []float32, record model.MemoryRecord) error {
	var emb any
	if embedding != nil {
		if err := vector.CheckDims(a.dimensionSize, embedding); err != nil {
			return err
		}
		emb = pgv.NewVector(embedding)
	}

	// id and created_at are never written
	next := record.Clone()
	if next.Metadata == nil {
		next.Metadata = map[string]any{}
	}

	tag, err := a.db.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET
			content = $2,
			metadata = $3,
			user_id = $4,
			agent_id = $5,
			run_id = $6,
			updated_at = $7,
			embedding = COALESCE($8::vector, embedding)
		WHERE id = $1
	`, a.table),
		id,
		next.Content,
		next.Metadata,
		next.UserID,
		next.AgentID,
		next.RunID,
		nullTime(next.UpdatedAt),
		emb,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound(id)
	}

	log.DebugContext(ctx, "Updated record in pgvector", "id", id, "table", a.table)
	return nil
}

// DeleteAll removes every record matching filters.
func (a *PgvectorAdapter) DeleteAll(ctx context.Context, filters *filter.Filters) (int, error) {
	if err := filters.Validate(); err != nil {
		return 0, err
	}

	where, args, complete := buildWhereClause(filters, 0)
	if complete {
		tag, err := a.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, a.table, where), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to delete records: %w", err)
		}
		return int(tag.RowsAffected()), nil
	}

	matches, err := a.List(ctx, filters, 0)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	tag, err := a.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, a.table), ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}

	log.DebugContext(ctx, "Deleted records from pgvector", "count", tag.RowsAffected(), "table", a.table)
	return int(tag.RowsAffected()), nil
}

const recordColumns = `id, content, metadata, user_id, agent_id, run_id, created_at, updated_at`

func collectScored(rows pgx.Rows) ([]model.ScoredMemory, error) {
	defer rows.Close()

	var out []model.ScoredMemory
	for rows.Next() {
		var (
			rec       model.MemoryRecord
			updatedAt *time.Time
			score     float64
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Content,
			&rec.Metadata,
			&rec.UserID,
			&rec.AgentID,
			&rec.RunID,
			&rec.CreatedAt,
			&updatedAt,
			&score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if updatedAt != nil {
			rec.UpdatedAt = *updatedAt
		}
		if len(rec.Metadata) == 0 {
			rec.Metadata = nil
		}
		out = append(out, model.ScoredMemory{Record: rec, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// pushdownColumns are the filter fields stored as plain columns
var pushdownColumns = map[string]bool{
	filter.FieldID:      true,
	filter.FieldContent: true,
	filter.FieldUserID:  true,
	filter.FieldAgentID: true,
	filter.FieldRunID:   true,
}

// buildWhereClause translates the parts of filters SQL can express exactly.
// Placeholders start after offset. complete reports whether the clause is
// equivalent to filters, so no further filtering is needed.
func buildWhereClause(filters *filter.Filters, offset int) (string, []any, bool) {
	conditions := []string{"TRUE"}
	var args []any

	if filters == nil {
		return "TRUE", nil, true
	}

	complete := filters.Expression == "" && len(filters.Groups) == 0
	if filters.Logic == filter.Or && len(filters.Conditions) > 1 {
		return "TRUE", nil, false
	}

	for _, c := range filters.Conditions {
		clause, arg, ok := conditionSQL(c, offset+len(args)+1)
		if !ok {
			complete = false
			continue
		}
		conditions = append(conditions, clause)
		args = append(args, arg)
	}

	return strings.Join(conditions, " AND "), args, complete
}

func conditionSQL(c filter.Condition, param int) (string, any, bool) {
	if !pushdownColumns[c.Field] {
		return "", nil, false
	}

	switch c.Operator {
	case filter.OpEq, filter.OpNe:
		s, ok := c.Value.(string)
		if !ok || s == "" {
			return "", nil, false
		}
		op := "="
		if c.Operator == filter.OpNe {
			op = "<>"
		}
		return fmt.Sprintf("%s %s $%d", c.Field, op, param), s, true
	case filter.OpIn, filter.OpNin:
		values, ok := stringList(c.Value)
		if !ok {
			return "", nil, false
		}
		if c.Operator == filter.OpIn {
			return fmt.Sprintf("%s = ANY($%d)", c.Field, param), values, true
		}
		return fmt.Sprintf("NOT (%s = ANY($%d))", c.Field, param), values, true
	}
	return "", nil, false
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s == "" {
				return nil, false
			}
		}
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
