package recall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lexlapax/recall/pkg/config"
	"github.com/lexlapax/recall/pkg/embedding"
	hashEmbedder "github.com/lexlapax/recall/pkg/embedding/adapters/hash"
	openaiEmbedder "github.com/lexlapax/recall/pkg/embedding/adapters/openai"
	"github.com/lexlapax/recall/pkg/embedding/cache"
	"github.com/lexlapax/recall/pkg/history"
	historyMemory "github.com/lexlapax/recall/pkg/history/adapters/inmemory"
	"github.com/lexlapax/recall/pkg/history/adapters/sqlstore"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/reasoning"
	reasoningAnthropic "github.com/lexlapax/recall/pkg/reasoning/adapters/anthropic"
	reasoningMock "github.com/lexlapax/recall/pkg/reasoning/adapters/mock"
	reasoningOpenAI "github.com/lexlapax/recall/pkg/reasoning/adapters/openai"
	"github.com/lexlapax/recall/pkg/reconcile"
	"github.com/lexlapax/recall/pkg/scripting"
	"github.com/lexlapax/recall/pkg/search"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/pkg/store/adapters/boltdb"
	"github.com/lexlapax/recall/pkg/store/adapters/chromem_go"
	"github.com/lexlapax/recall/pkg/store/adapters/inmemory"
	"github.com/lexlapax/recall/pkg/store/adapters/pgvector"
)

// mockEmptyResponse satisfies both model calls made by Add with no changes.
const mockEmptyResponse = `{"facts": [], "memory": []}`

// NewFromConfig loads the YAML file at configPath and builds a Memory from it.
func NewFromConfig(ctx context.Context, configPath string) (*Memory, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return FromConfig(ctx, cfg)
}

// FromConfig builds every component described by cfg. Components created
// before a failure are closed again.
func FromConfig(ctx context.Context, cfg *config.Config) (m *Memory, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := log.SetupWithOutput(cfg.Logging, os.Stderr)

	var cleanup []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}
	}()

	embedder, closeEmbedder, err := initEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if closeEmbedder != nil {
		cleanup = append(cleanup, closeEmbedder)
	}

	vs, err := initVectorStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	cleanup = append(cleanup, vs.Close)

	hist, err := initHistory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}
	if hist != nil {
		cleanup = append(cleanup, hist.Close)
	}

	engine, err := initReasoningEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reasoning engine: %w", err)
	}

	scripts, err := initScriptEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scripting: %w", err)
	}
	if scripts != nil {
		cleanup = append(cleanup, scripts.Close)
	}

	opts := []Option{
		WithLogger(logger),
		WithSearchConfig(search.Config{
			MaxResults:          cfg.Search.MaxResults,
			SimilarityThreshold: cfg.Search.SimilarityThreshold,
		}),
		WithReconcileConfig(reconcile.Config{
			Temperature: reconcile.Temperature(cfg.Reasoning.Temperature),
			MaxTokens:   cfg.Reasoning.MaxTokens,
		}),
	}
	if engine != nil {
		opts = append(opts, WithLLM(engine))
	}
	if hist != nil {
		opts = append(opts, WithHistory(hist))
	}
	if closeEmbedder != nil {
		opts = append(opts, withCloser(closeEmbedder))
	}
	if scripts != nil {
		opts = append(opts, WithScripts(scripts), withCloser(scripts.Close))
	}

	m, err = New(embedder, vs, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("Memory initialized from config",
		"collection", cfg.CollectionName,
		"embedder", cfg.Embedder.Provider,
		"dimensions", cfg.Embedder.Dimensions,
		"vector_store", cfg.VectorStore.Provider,
		"reasoning_provider", cfg.Reasoning.Provider,
		"history", cfg.History.Provider,
		"scripts", len(cfg.Scripting.Paths))

	return m, nil
}

// initEmbedder returns the configured embedder and, when it holds resources,
// a function releasing them.
func initEmbedder(cfg *config.Config) (embedding.Embedder, func() error, error) {
	var base embedding.Embedder
	switch cfg.Embedder.Provider {
	case config.ProviderHash:
		base = hashEmbedder.New(cfg.Embedder.Dimensions)
	case config.ProviderOpenAI:
		e, err := openaiEmbedder.New(openaiEmbedder.Config{
			APIKey:     cfg.Embedder.OpenAI.APIKey,
			Model:      cfg.Embedder.OpenAI.Model,
			Dimensions: cfg.Embedder.Dimensions,
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		base = e
	default:
		return nil, nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Embedder.Provider)
	}

	if !cfg.Embedder.Cache.Enabled {
		return base, nil, nil
	}
	cached, err := cache.New(base, cache.Config{MaxEntries: int64(cfg.Embedder.Cache.MaxEntries)})
	if err != nil {
		return nil, nil, err
	}
	log.Debug("Embedding cache enabled", "max_entries", cfg.Embedder.Cache.MaxEntries)
	return cached, func() error { cached.Close(); return nil }, nil
}

// initVectorStore initializes the appropriate vector store based on configuration
func initVectorStore(ctx context.Context, cfg *config.Config) (store.VectorStore, error) {
	dims := cfg.Embedder.Dimensions
	log.Info("Initializing vector store", "type", cfg.VectorStore.Provider, "collection", cfg.CollectionName)

	switch cfg.VectorStore.Provider {
	case config.ProviderMemory:
		return inmemory.New(dims), nil

	case config.ProviderBoltDB:
		path := cfg.VectorStore.BoltDB.Path
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		return boltdb.Open(path, boltdb.Config{
			Collection: cfg.CollectionName,
			Dimensions: dims,
		})

	case config.ProviderChromemGo:
		storagePath := cfg.VectorStore.ChromemGo.StoragePath
		if storagePath != "" {
			if err := os.MkdirAll(storagePath, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create chromem-go storage directory: %w", err)
			}
		}
		return chromem_go.Open(chromem_go.Config{
			Collection:  cfg.CollectionName,
			Dimensions:  dims,
			StoragePath: storagePath,
			Compress:    cfg.VectorStore.ChromemGo.Compress,
		})

	case config.ProviderPgVector:
		return pgvector.NewPgvectorAdapter(ctx, pgvector.PgvectorConfig{
			ConnectionString: cfg.VectorStore.PgVector.ConnectionString,
			TableName:        cfg.VectorStore.PgVector.TableName,
			DimensionSize:    dims,
		})

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", cfg.VectorStore.Provider)
	}
}

// initHistory returns the configured history store, or nil when history is off.
func initHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	switch cfg.History.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderMemory:
		return historyMemory.New(), nil
	case config.ProviderSQLite:
		path := cfg.History.SQLite.Path
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		log.Info("Using SQLite history store", "path", path)
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, path)
	case config.ProviderPostgres:
		log.Info("Using PostgreSQL history store")
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.History.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unsupported history provider: %s", cfg.History.Provider)
	}
}

// initReasoningEngine returns the configured language model, or nil when none is configured.
func initReasoningEngine(cfg *config.Config) (reasoning.Engine, error) {
	switch cfg.Reasoning.Provider {
	case config.ProviderNone:
		log.Info("No reasoning engine configured, Add stores messages as is")
		return nil, nil
	case config.ProviderMock:
		log.Info("Using mock reasoning engine")
		return reasoningMock.NewMockEngine(reasoningMock.WithDefaultResponse(mockEmptyResponse)), nil
	case config.ProviderOpenAI:
		log.Info("Using OpenAI reasoning engine", "model", cfg.Reasoning.OpenAI.Model)
		return reasoningOpenAI.NewOpenAIAdapter(reasoningOpenAI.Config{
			APIKey:  cfg.Reasoning.OpenAI.APIKey,
			Model:   cfg.Reasoning.OpenAI.Model,
			BaseURL: cfg.Reasoning.OpenAI.BaseURL,
		})
	case config.ProviderAnthropic:
		log.Info("Using Anthropic reasoning engine", "model", cfg.Reasoning.Anthropic.Model)
		return reasoningAnthropic.New(reasoningAnthropic.Config{
			APIKey:  cfg.Reasoning.Anthropic.APIKey,
			Model:   cfg.Reasoning.Anthropic.Model,
			BaseURL: cfg.Reasoning.Anthropic.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported reasoning provider: %s", cfg.Reasoning.Provider)
	}
}

// initScriptEngine loads the configured Lua scripts, or returns nil when none are configured.
func initScriptEngine(cfg *config.Config) (*scripting.LuaEngine, error) {
	if len(cfg.Scripting.Paths) == 0 {
		return nil, nil
	}
	engine, err := scripting.NewLuaEngine(scripting.Config{
		EnableSandboxing: !cfg.Scripting.Unsandboxed,
		ScriptTimeoutMs:  cfg.Scripting.TimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if err := scripting.LoadAll(engine, cfg.Scripting.Paths); err != nil {
		_ = engine.Close()
		return nil, err
	}
	log.Info("Loaded Lua scripts", "scripts", engine.Scripts())
	return engine, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
