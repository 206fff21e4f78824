package pgvector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoPgvector(t *testing.T) string {
	pgvectorURL := os.Getenv("PGVECTOR_TEST_URL")
	if pgvectorURL == "" {
		t.Skip("Skipping pgvector tests: PGVECTOR_TEST_URL environment variable not set")
	}
	return pgvectorURL
}

func setupTestAdapter(t *testing.T) *PgvectorAdapter {
	pgvectorURL := skipIfNoPgvector(t)
	ctx := context.Background()

	// Random table name per test to avoid conflicts
	tableName := "test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	adapter, err := NewPgvectorAdapter(ctx, PgvectorConfig{
		ConnectionString: pgvectorURL,
		TableName:        tableName,
		DimensionSize:    testutil.SuiteDims,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = adapter.DB().Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", adapter.table))
	})
	return adapter
}

func TestPgvectorAdapterSuite(t *testing.T) {
	skipIfNoPgvector(t)
	testutil.RunVectorStoreSuite(t, func(t *testing.T) store.VectorStore {
		return setupTestAdapter(t)
	})
}

func TestNewPgvectorAdapter_InvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewPgvectorAdapter(ctx, PgvectorConfig{DimensionSize: 4})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = NewPgvectorAdapter(ctx, PgvectorConfig{ConnectionString: "postgres://localhost/db"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestBuildWhereClause(t *testing.T) {
	tests := []struct {
		name         string
		filters      *filter.Filters
		offset       int
		wantWhere    string
		wantArgs     []any
		wantComplete bool
	}{
		{
			name:         "nil",
			filters:      nil,
			wantWhere:    "TRUE",
			wantComplete: true,
		},
		{
			name:         "scope",
			filters:      filter.ForScope(model.Scope{UserID: "alice", RunID: "r1"}),
			offset:       1,
			wantWhere:    "TRUE AND user_id = $2 AND run_id = $3",
			wantArgs:     []any{"alice", "r1"},
			wantComplete: true,
		},
		{
			name: "in and ne",
			filters: filter.All(
				filter.Condition{Field: filter.FieldAgentID, Operator: filter.OpIn, Value: []any{"a", "b"}},
				filter.Condition{Field: filter.FieldUserID, Operator: filter.OpNe, Value: "bob"},
			),
			wantWhere:    "TRUE AND agent_id = ANY($1) AND user_id <> $2",
			wantArgs:     []any{[]string{"a", "b"}, "bob"},
			wantComplete: true,
		},
		{
			name:         "metadata condition is left to Go",
			filters:      filter.All(filter.Eq(filter.FieldUserID, "alice"), filter.Eq("category", "food")),
			wantWhere:    "TRUE AND user_id = $1",
			wantArgs:     []any{"alice"},
			wantComplete: false,
		},
		{
			name:         "or logic is left to Go",
			filters:      filter.Any(filter.Eq(filter.FieldUserID, "a"), filter.Eq(filter.FieldUserID, "b")),
			wantWhere:    "TRUE",
			wantComplete: false,
		},
		{
			name:         "expression is left to Go",
			filters:      &filter.Filters{Conditions: []filter.Condition{filter.Eq(filter.FieldRunID, "r")}, Expression: "true"},
			wantWhere:    "TRUE AND run_id = $1",
			wantArgs:     []any{"r"},
			wantComplete: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, complete := buildWhereClause(tt.filters, tt.offset)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
			assert.Equal(t, tt.wantComplete, complete)
		})
	}
}

func TestPgvectorAdapter_MetadataFilter(t *testing.T) {
	adapter := setupTestAdapter(t)
	ctx := context.Background()

	food := testutil.Record("a", "pizza", model.Scope{UserID: "alice"})
	food.Metadata["category"] = "food"
	require.NoError(t, adapter.Insert(ctx, food, []float32{1, 0, 0, 0}))
	require.NoError(t, adapter.Insert(ctx, testutil.Record("b", "python", model.Scope{UserID: "alice"}), []float32{1, 0, 0, 0}))

	results, err := adapter.Search(ctx, []float32{1, 0, 0, 0}, 1, filter.All(filter.Eq(filter.FieldUserID, "alice"), filter.Eq("category", "food")))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Record.ID)

	n, err := adapter.DeleteAll(ctx, filter.All(filter.Eq("category", "food")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
