// Package reconcile turns conversations into memory changes. With a language
// model it extracts facts, compares them with related stored memories and
// applies the resulting ADD, UPDATE and DELETE actions; without one it stores
// every message as is.
package reconcile

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lexlapax/recall/pkg/embedding"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
	"github.com/lexlapax/recall/pkg/scripting"
	"github.com/lexlapax/recall/pkg/store"
)

// DefaultRetrievalLimit is how many related memories are fetched per fact.
const DefaultRetrievalLimit = 5

// Config tunes the model calls made by the pipeline.
type Config struct {
	// RetrievalLimit is the number of related memories fetched per fact
	RetrievalLimit int

	// Temperature is passed to the model when set, including zero
	Temperature *float64

	// MaxTokens is passed to the model; zero keeps the engine default
	MaxTokens int
}

// Temperature returns a pointer to t, for Config.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// AddOptions describe one Add call.
type AddOptions struct {
	// Scope owns the new memories; empty falls back to the context scope
	Scope model.Scope

	// Metadata is copied onto every memory created by the call
	Metadata map[string]any

	// Infer enables fact extraction and reconciliation when a model is configured
	Infer bool
}

// Pipeline orchestrates the embedder, the vector store and the optional model
// and history store. It holds no state between calls.
type Pipeline struct {
	embedder embedding.Embedder
	store    store.VectorStore
	llm      reasoning.Engine
	history  history.Store
	hooks    *scripting.Hooks
	config   Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLLM enables the inference path.
func WithLLM(engine reasoning.Engine) Option {
	return func(p *Pipeline) {
		p.llm = engine
	}
}

// WithHistory records every applied change.
func WithHistory(h history.Store) Option {
	return func(p *Pipeline) {
		p.history = h
	}
}

// WithHooks runs the encode hooks of loaded scripts on every new memory.
func WithHooks(h *scripting.Hooks) Option {
	return func(p *Pipeline) {
		p.hooks = h
	}
}

// WithConfig sets the pipeline configuration.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.config = cfg
	}
}

// New creates a pipeline.
func New(embedder embedding.Embedder, vs store.VectorStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder: embedder,
		store:    vs,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.config.RetrievalLimit <= 0 {
		p.config.RetrievalLimit = DefaultRetrievalLimit
	}
	return p
}

// HasLLM reports whether the inference path is available.
func (p *Pipeline) HasLLM() bool {
	return p.llm != nil
}

// Add stores what messages contain and returns the applied events in order.
// At least one scope attribute is required. A failure part way through leaves
// earlier changes in place; their events are returned along with the error.
func (p *Pipeline) Add(ctx context.Context, messages []model.Message, opts AddOptions) ([]model.MemoryEvent, error) {
	scope := model.ResolveScope(ctx, opts.Scope)
	if scope.IsZero() {
		return nil, errors.InvalidInput("at least one of user_id, agent_id or run_id is required")
	}

	r := &run{
		Pipeline: p,
		scope:    scope,
		metadata: opts.Metadata,
		logger:   log.WithScope(log.FromContext(ctx), scope),
		vectors:  make(map[string][]float32),
		events:   []model.MemoryEvent{},
	}

	if !opts.Infer || p.llm == nil {
		if opts.Infer {
			r.logger.DebugContext(ctx, "No language model configured, storing messages as is")
		}
		err := r.addRaw(ctx, messages)
		return r.events, err
	}

	err := r.infer(ctx, messages)
	return r.events, err
}

// run is the state of a single Add call.
type run struct {
	*Pipeline

	scope    model.Scope
	metadata map[string]any
	logger   *slog.Logger

	// vectors caches embeddings computed during the call, keyed by text
	vectors map[string][]float32

	// tempIDs maps the ids shown to the model to stored record ids
	tempIDs map[string]string

	events []model.MemoryEvent
}

func (r *run) addRaw(ctx context.Context, messages []model.Message) error {
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		if err := r.insert(ctx, msg.Content); err != nil {
			return err
		}
	}
	r.logger.DebugContext(ctx, "Stored messages without inference", "events", len(r.events))
	return nil
}

func (r *run) infer(ctx context.Context, messages []model.Message) error {
	facts, err := r.extractFacts(ctx, messages)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		r.logger.DebugContext(ctx, "No facts extracted from messages")
		return nil
	}
	r.logger.InfoContext(ctx, "Extracted facts", "count", len(facts))

	existing, err := r.retrieve(ctx, facts)
	if err != nil {
		return err
	}

	actions, err := r.plan(ctx, existing, facts)
	if err != nil {
		return err
	}

	for _, a := range actions {
		if err := r.apply(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

type factsResponse struct {
	Facts []string `json:"facts"`
}

func (r *run) extractFacts(ctx context.Context, messages []model.Message) ([]string, error) {
	prompt := []model.Message{
		{Role: model.RoleSystem, Content: FactExtractionPrompt},
		model.UserMessage(formatFactExtractionInput(model.Transcript(messages))),
	}

	var resp factsResponse
	if err := reasoning.GenerateJSON(ctx, r.llm, prompt, &resp, r.generateOptions()...); err != nil {
		return nil, err
	}

	facts := make([]string, 0, len(resp.Facts))
	for _, f := range resp.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

// retrieve collects the stored memories related to any fact, deduplicated by
// content, under sequential temporary ids.
func (r *run) retrieve(ctx context.Context, facts []string) ([]candidate, error) {
	scoped := filter.ForScope(r.scope)
	seen := make(map[string]bool)
	r.tempIDs = make(map[string]string)

	var existing []candidate
	for _, fact := range facts {
		emb, err := r.embed(ctx, fact)
		if err != nil {
			return nil, err
		}
		related, err := r.store.Search(ctx, emb, r.config.RetrievalLimit, scoped)
		if err != nil {
			return nil, err
		}
		for _, m := range related {
			if seen[m.Record.Content] {
				continue
			}
			seen[m.Record.Content] = true
			tempID := strconv.Itoa(len(existing))
			r.tempIDs[tempID] = m.Record.ID
			existing = append(existing, candidate{ID: tempID, Text: m.Record.Content})
		}
	}

	r.logger.DebugContext(ctx, "Retrieved related memories", "facts", len(facts), "memories", len(existing))
	return existing, nil
}

type actionsResponse struct {
	Memory []action `json:"memory"`
}

func (r *run) plan(ctx context.Context, existing []candidate, facts []string) ([]action, error) {
	input, err := formatMemoryUpdateInput(existing, facts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to format memory update input")
	}
	prompt := []model.Message{
		{Role: model.RoleSystem, Content: MemoryUpdatePrompt},
		model.UserMessage(input),
	}

	var resp actionsResponse
	if err := reasoning.GenerateJSON(ctx, r.llm, prompt, &resp, r.generateOptions()...); err != nil {
		return nil, err
	}
	return resp.Memory, nil
}

func (r *run) generateOptions() []reasoning.Option {
	var opts []reasoning.Option
	if r.config.Temperature != nil {
		opts = append(opts, reasoning.WithTemperature(*r.config.Temperature))
	}
	if r.config.MaxTokens > 0 {
		opts = append(opts, reasoning.WithMaxTokens(r.config.MaxTokens))
	}
	return opts
}

// embed returns the embedding of text, reusing one computed earlier in the call.
func (r *run) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := r.vectors[text]; ok {
		return v, nil
	}
	v, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Embedding(err)
	}
	r.vectors[text] = v
	return v, nil
}

func (r *run) record(ctx context.Context, entry history.Entry) error {
	if r.history == nil {
		return nil
	}
	if err := r.history.Add(ctx, entry); err != nil {
		return errors.Wrap(err, "failed to record history for memory %s", entry.MemoryID)
	}
	return nil
}
