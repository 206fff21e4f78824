package search

import (
	"context"
	"testing"

	"github.com/lexlapax/recall/pkg/embedding/adapters/hash"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/scripting"
	"github.com/lexlapax/recall/pkg/store/adapters/inmemory"
	"github.com/lexlapax/recall/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticFixture stores records whose embeddings give known scores against the query "q".
func staticFixture(t *testing.T) (*testutil.StaticEmbedder, *inmemory.Store) {
	t.Helper()
	ctx := context.Background()

	emb := testutil.NewStaticEmbedder(2, map[string][]float32{
		"q": {1, 0},
	})
	vs := inmemory.New(2)

	insert := func(id string, scope model.Scope, v []float32) {
		require.NoError(t, vs.Insert(ctx, testutil.Record(id, id, scope), v))
	}
	alice := model.Scope{UserID: "alice"}
	bob := model.Scope{UserID: "bob"}

	insert("exact", alice, []float32{1, 0})      // 1.0
	insert("bob-exact", bob, []float32{2, 0})    // 1.0
	insert("edge", alice, []float32{3, 4})       // 0.6
	insert("low", alice, []float32{1, 7})        // ~0.141
	insert("opposite", alice, []float32{-1, 0})  // -1.0
	insert("orthogonal", alice, []float32{0, 1}) // 0.0
	return emb, vs
}

func ids(results []model.ScoredMemory) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.ID
	}
	return out
}

func TestSearch_ThresholdIsInclusive(t *testing.T) {
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, Config{MaxResults: 10, SimilarityThreshold: 0.6})

	results, err := svc.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "bob-exact", "edge"}, ids(results))

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_ThresholdOverride(t *testing.T) {
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, DefaultConfig())

	results, err := svc.Search(context.Background(), "q", Options{Threshold: Threshold(0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "bob-exact", "edge", "low", "orthogonal"}, ids(results))

	results, err = svc.Search(context.Background(), "q", Options{Threshold: Threshold(-1)})
	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func TestSearch_Scope(t *testing.T) {
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, Config{MaxResults: 10})

	results, err := svc.Search(context.Background(), "q", Options{Scope: model.Scope{UserID: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob-exact"}, ids(results))

	ctx := model.ContextWithScope(context.Background(), model.Scope{UserID: "bob"})
	results, err = svc.Search(ctx, "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob-exact"}, ids(results))

	// An explicit scope wins over the context
	results, err = svc.Search(ctx, "q", Options{Scope: model.Scope{UserID: "carol"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RetrieveHooks(t *testing.T) {
	engine, err := scripting.NewLuaEngine(scripting.DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()
	require.NoError(t, engine.LoadScript("hooks", []byte(`
		function before_retrieve(query, scope)
			return string.lower(query)
		end
		function after_retrieve(results)
			local kept = {}
			for i = #results, 1, -1 do
				table.insert(kept, results[i].id)
			end
			return kept
		end
	`)))

	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, Config{MaxResults: 10, SimilarityThreshold: 0.5}, WithHooks(scripting.NewHooks(engine)))

	results, err := svc.Search(context.Background(), "Q", Options{Scope: model.Scope{UserID: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"edge", "exact"}, ids(results))
}

func TestSearch_Limit(t *testing.T) {
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, Config{MaxResults: 2, SimilarityThreshold: -1})

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, 2},
		{"negative", -3, 2},
		{"below cap", 1, 1},
		{"capped", 50, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := svc.Search(context.Background(), "q", Options{Limit: tt.limit})
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestSearch_OverFetchThenFilter(t *testing.T) {
	// Scope filtering happens after the store returns limit*2 candidates, so a
	// scope whose best match ranks below that window yields fewer results.
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, Config{MaxResults: 1, SimilarityThreshold: -1})

	results, err := svc.Search(context.Background(), "q", Options{Scope: model.Scope{UserID: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob-exact"}, ids(results))

	results, err = svc.Search(context.Background(), "q", Options{Limit: 1, Scope: model.Scope{UserID: "nobody"}})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestSearch_Filters(t *testing.T) {
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, Config{MaxResults: 10, SimilarityThreshold: -1})

	results, err := svc.Search(context.Background(), "q", Options{
		Filters: filter.Any(filter.Eq(filter.FieldID, "low"), filter.Eq(filter.FieldID, "edge")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"edge", "low"}, ids(results))

	_, err = svc.Search(context.Background(), "q", Options{Filters: &filter.Filters{Expression: "content +"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	emb, vs := staticFixture(t)
	svc := NewService(emb, vs, DefaultConfig())

	_, err := svc.Search(context.Background(), "unknown text", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmbedding))
}

func TestSearch_DimensionMismatch(t *testing.T) {
	emb := testutil.NewStaticEmbedder(3, map[string][]float32{"q": {1, 0, 0}})
	vs := inmemory.New(2)
	require.NoError(t, vs.Insert(context.Background(), testutil.Record("a", "a", model.Scope{}), []float32{1, 0}))

	svc := NewService(emb, vs, DefaultConfig())
	_, err := svc.Search(context.Background(), "q", Options{})
	assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))
}

func TestSearch_EmptyStore(t *testing.T) {
	svc := NewService(hash.New(hash.DefaultDimensions), inmemory.New(hash.DefaultDimensions), DefaultConfig())

	results, err := svc.Search(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_TopicScenario(t *testing.T) {
	ctx := context.Background()
	emb := hash.New(hash.DefaultDimensions)
	vs := inmemory.New(emb.Dimensions())

	for _, doc := range []struct{ content, topic string }{
		{"Rust is great for systems programming", "rust"},
		{"Python is often used for rapid prototyping", "python"},
	} {
		rec := model.NewRecord(doc.content, map[string]any{"topic": doc.topic}, model.Scope{})
		v, err := emb.Embed(ctx, doc.content)
		require.NoError(t, err)
		require.NoError(t, vs.Insert(ctx, rec, v))
	}

	svc := NewService(emb, vs, DefaultConfig())
	results, err := svc.Search(ctx, "systems programming", Options{Threshold: Threshold(0)})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "rust", results[0].Record.Metadata["topic"])
}

func TestSearch_MaxResultsScenario(t *testing.T) {
	ctx := context.Background()
	emb := hash.New(hash.DefaultDimensions)
	vs := inmemory.New(emb.Dimensions())

	for _, content := range []string{"item one", "item two"} {
		v, err := emb.Embed(ctx, content)
		require.NoError(t, err)
		require.NoError(t, vs.Insert(ctx, model.NewRecord(content, nil, model.Scope{}), v))
	}

	svc := NewService(emb, vs, Config{MaxResults: 1, SimilarityThreshold: 0})
	results, err := svc.Search(ctx, "item", Options{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_DeletedRecordScenario(t *testing.T) {
	ctx := context.Background()
	emb := hash.New(hash.DefaultDimensions)
	vs := inmemory.New(emb.Dimensions())

	rec := model.NewRecord("temporary note about lunch", nil, model.Scope{UserID: "u"})
	v, err := emb.Embed(ctx, rec.Content)
	require.NoError(t, err)
	require.NoError(t, vs.Insert(ctx, rec, v))
	require.NoError(t, vs.Delete(ctx, rec.ID))

	svc := NewService(emb, vs, Config{MaxResults: 10, SimilarityThreshold: 0})
	results, err := svc.Search(ctx, rec.Content, Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
