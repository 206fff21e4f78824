// Package search runs similarity queries through an embedder and a vector store,
// then applies the similarity threshold, scope and result limit.
package search

import (
	"context"

	"github.com/lexlapax/recall/pkg/embedding"
	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/scripting"
	"github.com/lexlapax/recall/pkg/store"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMaxResults = 10
	DefaultThreshold  = float32(0.2)
)

// overFetch is how many candidates are requested from the store per wanted result.
const overFetch = 2

// Config bounds every search.
type Config struct {
	// MaxResults is both the default and the upper bound for Options.Limit
	MaxResults int `yaml:"max_results"`

	// SimilarityThreshold is the inclusive lower bound on scores
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	return Config{
		MaxResults:          DefaultMaxResults,
		SimilarityThreshold: DefaultThreshold,
	}
}

// Options tune a single search.
type Options struct {
	// Limit is the number of results wanted; zero means Config.MaxResults
	Limit int

	// Threshold overrides Config.SimilarityThreshold when non-nil
	Threshold *float32

	// Scope restricts results to matching owners; empty falls back to the context scope
	Scope model.Scope

	// Filters are handed to the store
	Filters *filter.Filters
}

// Service executes searches.
type Service struct {
	embedder embedding.Embedder
	store    store.VectorStore
	config   Config
	hooks    *scripting.Hooks
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHooks runs the retrieve hooks of loaded scripts on every search.
func WithHooks(h *scripting.Hooks) ServiceOption {
	return func(s *Service) {
		s.hooks = h
	}
}

// NewService creates a search service. Non-positive MaxResults falls back to the default.
func NewService(embedder embedding.Embedder, vs store.VectorStore, config Config, opts ...ServiceOption) *Service {
	if config.MaxResults <= 0 {
		config.MaxResults = DefaultMaxResults
	}
	s := &Service{
		embedder: embedder,
		store:    vs,
		config:   config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// Search embeds query and returns up to the effective limit of memories ranked by
// similarity. An empty result is not an error.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]model.ScoredMemory, error) {
	if err := opts.Filters.Validate(); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 || limit > s.config.MaxResults {
		limit = s.config.MaxResults
	}
	threshold := s.config.SimilarityThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	scope := model.ResolveScope(ctx, opts.Scope)

	logger := log.WithScope(log.FromContext(ctx), scope)

	query = s.hooks.BeforeRetrieve(ctx, query, scope)
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Embedding(err)
	}

	candidates, err := s.store.Search(ctx, emb, limit*overFetch, opts.Filters)
	if err != nil {
		return nil, err
	}

	results := make([]model.ScoredMemory, 0, limit)
	for _, c := range candidates {
		if c.Score < threshold {
			continue
		}
		if !scope.Matches(c.Record) {
			continue
		}
		results = append(results, c)
		if len(results) == limit {
			break
		}
	}
	results = s.hooks.AfterRetrieve(ctx, results)

	logger.DebugContext(ctx, "Search completed",
		"candidates", len(candidates),
		"results", len(results),
		"limit", limit,
		"threshold", threshold)

	return results, nil
}

// Threshold returns a pointer to t, for Options.Threshold.
func Threshold(t float32) *float32 {
	return &t
}
