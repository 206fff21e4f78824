// Package recall is the entry point of the memory layer. Memory ties an
// embedder, a vector store, an optional language model and an optional history
// store together behind one set of operations.
package recall

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lexlapax/recall/pkg/embedding"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
	"github.com/lexlapax/recall/pkg/reconcile"
	"github.com/lexlapax/recall/pkg/scripting"
	"github.com/lexlapax/recall/pkg/search"
	"github.com/lexlapax/recall/pkg/store"
)

// DefaultListLimit is how many records GetAll returns when no limit is given.
const DefaultListLimit = 100

// AddOptions describe one Add call.
type AddOptions = reconcile.AddOptions

// SearchOptions tune one Search call.
type SearchOptions = search.Options

// GetAllOptions select the records returned by GetAll.
type GetAllOptions struct {
	// Scope restricts records to matching owners; empty falls back to the context scope
	Scope model.Scope

	// Filters further restrict the records
	Filters *filter.Filters

	// Limit caps the number of records; zero means DefaultListLimit, negative means all
	Limit int
}

// Memory is the memory layer client. It is safe for concurrent use when its
// components are.
type Memory struct {
	embedder embedding.Embedder
	store    store.VectorStore
	llm      reasoning.Engine
	history  history.Store
	hooks    *scripting.Hooks
	logger   *slog.Logger

	searchConfig    search.Config
	reconcileConfig reconcile.Config

	searcher *search.Service
	pipeline *reconcile.Pipeline

	// closers release resources owned by Memory, in order
	closers []func() error
}

// Option configures a Memory.
type Option func(*Memory)

// WithLLM enables fact extraction and reconciliation on Add.
func WithLLM(engine reasoning.Engine) Option {
	return func(m *Memory) {
		m.llm = engine
	}
}

// WithHistory records every change to a history store.
func WithHistory(h history.Store) Option {
	return func(m *Memory) {
		m.history = h
	}
}

// WithScripts runs the hook functions defined by the engine's scripts on Add
// and Search. The caller keeps ownership of the engine.
func WithScripts(engine scripting.Engine) Option {
	return func(m *Memory) {
		m.hooks = scripting.NewHooks(engine)
	}
}

// WithSearchConfig sets the search limits and threshold.
func WithSearchConfig(cfg search.Config) Option {
	return func(m *Memory) {
		m.searchConfig = cfg
	}
}

// WithReconcileConfig tunes the model calls made by Add.
func WithReconcileConfig(cfg reconcile.Config) Option {
	return func(m *Memory) {
		m.reconcileConfig = cfg
	}
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) {
		m.logger = logger
	}
}

// withCloser hands ownership of a resource to Memory.
func withCloser(fn func() error) Option {
	return func(m *Memory) {
		m.closers = append(m.closers, fn)
	}
}

// New creates a Memory over an embedder and a vector store. The embedder's
// dimensionality must match the store's.
func New(embedder embedding.Embedder, vs store.VectorStore, opts ...Option) (*Memory, error) {
	if embedder == nil {
		return nil, errors.InvalidInput("embedder is required")
	}
	if vs == nil {
		return nil, errors.InvalidInput("vector store is required")
	}

	m := &Memory{
		embedder:     embedder,
		store:        vs,
		searchConfig: search.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.searcher = search.NewService(embedder, vs, m.searchConfig, search.WithHooks(m.hooks))

	pipelineOpts := []reconcile.Option{
		reconcile.WithConfig(m.reconcileConfig),
		reconcile.WithHooks(m.hooks),
	}
	if m.llm != nil {
		pipelineOpts = append(pipelineOpts, reconcile.WithLLM(m.llm))
	}
	if m.history != nil {
		pipelineOpts = append(pipelineOpts, reconcile.WithHistory(m.history))
	}
	m.pipeline = reconcile.New(embedder, vs, pipelineOpts...)

	m.logger.Debug("Memory initialized",
		"dimensions", embedder.Dimensions(),
		"inference", m.llm != nil,
		"history", m.history != nil,
		"scripts", m.hooks != nil)

	return m, nil
}

func (m *Memory) withLogger(ctx context.Context) context.Context {
	return log.EnsureLogger(ctx, m.logger)
}

// Add stores the information in messages. With a language model and
// opts.Infer it extracts facts and reconciles them with related memories;
// otherwise every non-system message becomes a memory. The applied events are
// returned in order, also alongside an error that stopped the call part way.
func (m *Memory) Add(ctx context.Context, messages []model.Message, opts AddOptions) ([]model.MemoryEvent, error) {
	ctx = m.withLogger(ctx)
	events, err := m.pipeline.Add(ctx, messages, opts)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Add failed", "events", len(events), "error", err)
		return events, err
	}
	log.FromContext(ctx).InfoContext(ctx, "Add completed", "messages", len(messages), "events", len(events))
	return events, nil
}

// AddText is Add with a single user message.
func (m *Memory) AddText(ctx context.Context, text string, opts AddOptions) ([]model.MemoryEvent, error) {
	return m.Add(ctx, []model.Message{model.UserMessage(text)}, opts)
}

// Put stores content as one memory without inference or script hooks and
// returns the record. Scope is taken from the context and may be empty.
func (m *Memory) Put(ctx context.Context, content string, metadata map[string]any) (*model.MemoryRecord, error) {
	ctx = m.withLogger(ctx)
	if strings.TrimSpace(content) == "" {
		return nil, errors.InvalidInput("content must not be empty")
	}

	scope, _ := model.ScopeFromContext(ctx)
	rec := model.NewRecord(content, metadata, scope)

	emb, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, errors.Embedding(err)
	}
	if err := m.store.Insert(ctx, rec, emb); err != nil {
		return nil, err
	}
	if err := m.record(ctx, history.NewEntry(rec.ID, model.EventAdd, "", content)); err != nil {
		return nil, err
	}

	log.FromContext(ctx).DebugContext(ctx, "Stored memory", "id", rec.ID)
	return &rec, nil
}

// Search returns memories similar to query, best first.
func (m *Memory) Search(ctx context.Context, query string, opts SearchOptions) ([]model.ScoredMemory, error) {
	return m.searcher.Search(m.withLogger(ctx), query, opts)
}

// Get returns the memory with id. It fails with ErrNotFound when absent.
func (m *Memory) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	rec, err := m.store.Get(m.withLogger(ctx), id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NotFound(id)
	}
	return rec, nil
}

// GetAll lists memories in insertion order.
func (m *Memory) GetAll(ctx context.Context, opts GetAllOptions) ([]model.MemoryRecord, error) {
	ctx = m.withLogger(ctx)
	if err := opts.Filters.Validate(); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	scope := model.ResolveScope(ctx, opts.Scope)
	filters := filter.Merge(filter.ForScope(scope), opts.Filters)

	records, err := m.store.List(ctx, filters, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.MemoryRecord{}
	}
	return records, nil
}

// Update replaces the content of a memory and re-embeds it. Scope, metadata
// and creation time are kept.
func (m *Memory) Update(ctx context.Context, id, content string) (*model.MemoryRecord, error) {
	ctx = m.withLogger(ctx)
	if strings.TrimSpace(content) == "" {
		return nil, errors.InvalidInput("content must not be empty")
	}

	existing, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	emb, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, errors.Embedding(err)
	}
	updated := existing.Clone()
	updated.Content = content
	updated.UpdatedAt = time.Now().UTC()

	if err := m.store.Update(ctx, id, emb, updated); err != nil {
		return nil, err
	}
	if err := m.record(ctx, history.NewEntry(id, model.EventUpdate, existing.Content, content)); err != nil {
		return nil, err
	}

	log.FromContext(ctx).DebugContext(ctx, "Updated memory", "id", id)
	return &updated, nil
}

// Delete removes a memory. It fails with ErrNotFound when absent.
func (m *Memory) Delete(ctx context.Context, id string) error {
	ctx = m.withLogger(ctx)
	existing, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := m.record(ctx, history.NewEntry(id, model.EventDelete, existing.Content, "")); err != nil {
		return err
	}

	log.FromContext(ctx).DebugContext(ctx, "Deleted memory", "id", id)
	return nil
}

// DeleteAll removes every memory owned by scope and returns how many were
// removed. An empty scope is rejected; use Reset to clear everything. With a
// history store, memories are removed one by one so that a DELETE entry is
// recorded only for memories this call actually removed.
func (m *Memory) DeleteAll(ctx context.Context, scope model.Scope) (int, error) {
	ctx = m.withLogger(ctx)
	scope = model.ResolveScope(ctx, scope)
	if scope.IsZero() {
		return 0, errors.InvalidInput("at least one of user_id, agent_id or run_id is required")
	}
	logger := log.WithScope(log.FromContext(ctx), scope)
	filters := filter.ForScope(scope)

	if m.history == nil {
		n, err := m.store.DeleteAll(ctx, filters)
		if err != nil {
			return 0, err
		}
		logger.InfoContext(ctx, "Deleted memories", "count", n)
		return n, nil
	}

	removed := 0
	for {
		records, err := m.store.List(ctx, filters, 0)
		if err != nil {
			return removed, err
		}
		pass := 0
		for _, rec := range records {
			if err := m.store.Delete(ctx, rec.ID); err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					logger.DebugContext(ctx, "Memory already deleted", "id", rec.ID)
					continue
				}
				return removed, err
			}
			removed++
			pass++
			if err := m.record(ctx, history.NewEntry(rec.ID, model.EventDelete, rec.Content, "")); err != nil {
				return removed, err
			}
		}
		// Memories added while deleting are picked up by the next pass
		if pass == 0 {
			break
		}
	}

	logger.InfoContext(ctx, "Deleted memories", "count", removed)
	return removed, nil
}

// Reset removes every memory and every history entry.
func (m *Memory) Reset(ctx context.Context) error {
	ctx = m.withLogger(ctx)
	n, err := m.store.DeleteAll(ctx, nil)
	if err != nil {
		return err
	}
	if m.history != nil {
		if err := m.history.Reset(ctx); err != nil {
			return errors.Wrap(err, "failed to reset history")
		}
	}
	log.FromContext(ctx).InfoContext(ctx, "Memory reset", "removed", n)
	return nil
}

// History returns the changes made to a memory, oldest first. It fails with
// ErrNotFound when the memory never existed, and returns an empty list when no
// history store is configured.
func (m *Memory) History(ctx context.Context, id string) ([]history.Entry, error) {
	ctx = m.withLogger(ctx)
	if m.history == nil {
		if _, err := m.Get(ctx, id); err != nil {
			return nil, err
		}
		return []history.Entry{}, nil
	}

	entries, err := m.history.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if _, err := m.Get(ctx, id); err != nil {
			return nil, err
		}
		return []history.Entry{}, nil
	}
	return entries, nil
}

// Close releases the vector store, the history store and anything else the
// Memory owns. It returns every error encountered.
func (m *Memory) Close() error {
	errs := []error{m.store.Close()}
	if m.history != nil {
		errs = append(errs, m.history.Close())
	}
	for _, fn := range m.closers {
		errs = append(errs, fn())
	}
	return stderrors.Join(errs...)
}

func (m *Memory) record(ctx context.Context, entry history.Entry) error {
	if m.history == nil {
		return nil
	}
	if err := m.history.Add(ctx, entry); err != nil {
		return errors.Wrap(err, "failed to record history for memory %s", entry.MemoryID)
	}
	return nil
}
