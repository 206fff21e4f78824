// Package chromem_go stores memories in an embedded chromem-go collection.
package chromem_go

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/pkg/vector"
)

// Document metadata keys. chromem-go only stores string metadata.
const (
	metaUserID    = "user_id"
	metaAgentID   = "agent_id"
	metaRunID     = "run_id"
	metaCreatedAt = "created_at"
	metaUpdatedAt = "updated_at"
	metaMetadata  = "metadata"
	metaSeq       = "seq"
	metaZeroNorm  = "zero_norm"
)

// Config holds configuration for the chromem-go store.
type Config struct {
	// Collection is the chromem-go collection name
	Collection string
	// Dimensions is the embedding length; zero is fixed by the first insert
	Dimensions int
	// StoragePath enables on-disk persistence when set
	StoragePath string
	// Compress gzips persisted documents
	Compress bool
}

// ChromemGoAdapter implements store.VectorStore using chromem-go.
//
// chromem-go normalizes document vectors and cannot hold zero vectors, so scores
// are computed here from the stored unit vectors and zero-norm embeddings are
// flagged in metadata.
type ChromemGoAdapter struct {
	db   *chromem.DB
	name string

	mu      sync.RWMutex
	col     *chromem.Collection
	dims    int
	nextSeq uint64
}

var _ store.VectorStore = (*ChromemGoAdapter)(nil)

// Open creates the chromem-go database described by cfg and the store on top of it.
func Open(cfg Config) (*ChromemGoAdapter, error) {
	db := chromem.NewDB()
	if cfg.StoragePath != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.StoragePath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem-go database at %s: %w", cfg.StoragePath, err)
		}
	}
	return NewChromemGoAdapter(db, cfg)
}

// NewChromemGoAdapter creates a store using a collection of db.
func NewChromemGoAdapter(db *chromem.DB, cfg Config) (*ChromemGoAdapter, error) {
	if db == nil {
		return nil, errors.InvalidInput("chromem-go database is nil")
	}
	if cfg.Collection == "" {
		cfg.Collection = "memories"
	}

	a := &ChromemGoAdapter{
		db:   db,
		name: cfg.Collection,
		dims: cfg.Dimensions,
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", cfg.Collection, err)
	}
	a.col = col

	if a.dims <= 0 && col.Count() > 0 {
		return nil, errors.InvalidInput("dimensions must be configured to open non-empty collection %s", cfg.Collection)
	}

	// Resume sequence numbering and dimensions from persisted documents
	docs, err := a.all(context.Background())
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if len(d.embedding) != a.dims {
			return nil, errors.DimensionMismatch(a.dims, len(d.embedding))
		}
		if d.seq >= a.nextSeq {
			a.nextSeq = d.seq + 1
		}
	}

	log.Debug("Initialized chromem-go vector store",
		"collection", cfg.Collection,
		"documents", len(docs),
		"dimensions", a.dims,
	)
	return a, nil
}

// noEmbedding is the collection's embedding func. Documents always carry vectors.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.Embedding(fmt.Errorf("chromem-go collection does not compute embeddings"))
}

// Insert stores a record with its embedding.
func (a *ChromemGoAdapter) Insert(ctx context.Context, record model.MemoryRecord, embedding []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := vector.CheckDims(a.dims, embedding); err != nil {
		return err
	}
	if _, err := a.col.GetByID(ctx, record.ID); err == nil {
		return errors.InvalidInput("memory with id %s already exists", record.ID)
	}
	if len(embedding) == 0 {
		return errors.InvalidInput("embedding cannot be empty")
	}

	doc, err := toDocument(record, embedding, a.nextSeq)
	if err != nil {
		return err
	}
	if err := a.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	a.nextSeq++
	if a.dims <= 0 {
		a.dims = len(embedding)
	}

	log.DebugContext(ctx, "Stored record in chromem-go", "id", record.ID, "collection", a.name)
	return nil
}

// Delete removes a record.
func (a *ChromemGoAdapter) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.col.GetByID(ctx, id); err != nil {
		return errors.NotFound(id)
	}
	if err := a.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	log.DebugContext(ctx, "Deleted record from chromem-go", "id", id, "collection", a.name)
	return nil
}

// Get returns the record with id, or nil when absent.
func (a *ChromemGoAdapter) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	doc, err := a.col.GetByID(ctx, id)
	if err != nil {
		return nil, nil
	}
	d, err := fromDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding)
	if err != nil {
		return nil, err
	}
	return &d.record, nil
}

// List returns records matching filters in insertion order.
func (a *ChromemGoAdapter) List(ctx context.Context, filters *filter.Filters, limit int) ([]model.MemoryRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	docs, err := a.all(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.MemoryRecord
	for _, d := range docs {
		if limit > 0 && len(out) >= limit {
			break
		}
		ok, err := filter.Match(filters, d.record)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d.record)
		}
	}
	return out, nil
}

// Search ranks matching records by cosine similarity to query.
func (a *ChromemGoAdapter) Search(ctx context.Context, query []float32, k int, filters *filter.Filters) ([]model.ScoredMemory, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := vector.CheckDims(a.dims, query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	docs, err := a.all(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, 0, len(docs))
	for _, d := range docs {
		ok, err := filter.Match(filters, d.record)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		score, err := vector.Cosine(query, d.embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, store.Candidate{
			Memory: model.ScoredMemory{Record: d.record, Score: score},
			Seq:    d.seq,
		})
	}

	return store.Rank(candidates, k), nil
}

// Update replaces the stored record and optionally its embedding.
func (a *ChromemGoAdapter) Update(ctx context.Context, id string, embedding []float32, record model.MemoryRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := a.col.GetByID(ctx, id)
	if err != nil {
		return errors.NotFound(id)
	}
	stored, err := fromDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding)
	if err != nil {
		return err
	}

	if embedding == nil {
		embedding = stored.embedding
	} else if err := vector.CheckDims(a.dims, embedding); err != nil {
		return err
	}

	next, err := toDocument(store.ApplyUpdate(stored.record, record), embedding, stored.seq)
	if err != nil {
		return err
	}
	// AddDocument replaces a document with the same id
	if err := a.col.AddDocument(ctx, next); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}

	log.DebugContext(ctx, "Updated record in chromem-go", "id", id, "collection", a.name)
	return nil
}

// DeleteAll removes every record matching filters.
func (a *ChromemGoAdapter) DeleteAll(ctx context.Context, filters *filter.Filters) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	docs, err := a.all(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, d := range docs {
		ok, err := filter.Match(filters, d.record)
		if err != nil {
			return 0, err
		}
		if ok {
			ids = append(ids, d.record.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := a.col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}

	log.DebugContext(ctx, "Deleted records from chromem-go", "count", len(ids), "collection", a.name)
	return len(ids), nil
}

// Close is a no-op; chromem-go persists on every write.
func (a *ChromemGoAdapter) Close() error {
	return nil
}

type document struct {
	record    model.MemoryRecord
	embedding []float32
	seq       uint64
}

// all returns every document in insertion order. Callers hold the lock.
func (a *ChromemGoAdapter) all(ctx context.Context) ([]document, error) {
	count := a.col.Count()
	if count == 0 {
		return nil, nil
	}

	// chromem-go has no listing call; a query for every document returns them all
	unit := make([]float32, a.dims)
	unit[0] = 1
	results, err := a.col.QueryEmbedding(ctx, unit, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate collection %s: %w", a.name, err)
	}

	docs := make([]document, 0, len(results))
	for _, r := range results {
		d, err := fromDocument(r.ID, r.Content, r.Metadata, r.Embedding)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })
	return docs, nil
}

func toDocument(rec model.MemoryRecord, embedding []float32, seq uint64) (chromem.Document, error) {
	meta := map[string]string{
		metaCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		metaSeq:       strconv.FormatUint(seq, 10),
	}
	if rec.UserID != "" {
		meta[metaUserID] = rec.UserID
	}
	if rec.AgentID != "" {
		meta[metaAgentID] = rec.AgentID
	}
	if rec.RunID != "" {
		meta[metaRunID] = rec.RunID
	}
	if !rec.UpdatedAt.IsZero() {
		meta[metaUpdatedAt] = rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return chromem.Document{}, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		meta[metaMetadata] = string(raw)
	}

	emb := vector.Copy(embedding)
	if vector.Norm(emb) == 0 {
		// A unit placeholder keeps chromem-go from normalizing to NaN
		meta[metaZeroNorm] = "true"
		for i := range emb {
			emb[i] = 0
		}
		emb[0] = 1
	}

	return chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Metadata:  meta,
		Embedding: emb,
	}, nil
}

func fromDocument(id, content string, meta map[string]string, embedding []float32) (document, error) {
	rec := model.MemoryRecord{
		ID:      id,
		Content: content,
		UserID:  meta[metaUserID],
		AgentID: meta[metaAgentID],
		RunID:   meta[metaRunID],
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err != nil {
		return document{}, fmt.Errorf("invalid created_at on document %s: %w", id, err)
	}
	if v := meta[metaUpdatedAt]; v != "" {
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return document{}, fmt.Errorf("invalid updated_at on document %s: %w", id, err)
		}
	}
	if v := meta[metaMetadata]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Metadata); err != nil {
			return document{}, fmt.Errorf("invalid metadata on document %s: %w", id, err)
		}
	}

	seq, err := strconv.ParseUint(meta[metaSeq], 10, 64)
	if err != nil {
		return document{}, fmt.Errorf("invalid seq on document %s: %w", id, err)
	}

	emb := vector.Copy(embedding)
	if meta[metaZeroNorm] == "true" {
		for i := range emb {
			emb[i] = 0
		}
	}

	return document{record: rec, embedding: emb, seq: seq}, nil
}
