package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/log"
)

// Environment variables that override file settings.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvPgVectorURL     = "RECALL_PGVECTOR_URL"
	EnvHistoryDSN      = "RECALL_HISTORY_DSN"
)

// LoadEnvFiles loads variables from .env files into the process environment
// without overriding variables already set. Missing files are ignored. With no
// paths it reads ".env" in the working directory.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML. Unset fields keep their defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	config := Default()

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) {
	if apiKey := os.Getenv(EnvOpenAIAPIKey); apiKey != "" {
		config.Embedder.OpenAI.APIKey = apiKey
		config.Reasoning.OpenAI.APIKey = apiKey
	}

	if apiKey := os.Getenv(EnvAnthropicAPIKey); apiKey != "" {
		config.Reasoning.Anthropic.APIKey = apiKey
	}

	if connStr := os.Getenv(EnvPgVectorURL); connStr != "" {
		config.VectorStore.PgVector.ConnectionString = connStr
	}

	if dsn := os.Getenv(EnvHistoryDSN); dsn != "" {
		config.History.Postgres.DSN = dsn
	}
}

// Validate checks the configuration and fills in defaults for optional fields.
func (c *Config) Validate() error {
	if c.CollectionName == "" {
		c.CollectionName = DefaultCollectionName
	}

	if err := c.validateEmbedder(); err != nil {
		return err
	}
	if err := c.validateVectorStore(); err != nil {
		return err
	}

	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = DefaultMaxResults
	}
	if c.Search.SimilarityThreshold < -1 || c.Search.SimilarityThreshold > 1 {
		return errors.InvalidInput("similarity threshold must be within [-1, 1], got %v", c.Search.SimilarityThreshold)
	}

	if err := c.validateReasoning(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}

	if c.Scripting.TimeoutMs < 0 {
		return errors.InvalidInput("script timeout must not be negative, got %d", c.Scripting.TimeoutMs)
	}
	if c.Scripting.TimeoutMs == 0 {
		c.Scripting.TimeoutMs = DefaultScriptTimeoutMs
	}

	switch log.Level(strings.ToLower(string(c.Logging.Level))) {
	case "":
		c.Logging.Level = log.InfoLevel
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		return errors.InvalidInput("unsupported log level: %s", c.Logging.Level)
	}
	switch log.Format(strings.ToLower(string(c.Logging.Format))) {
	case "":
		c.Logging.Format = log.TextFormat
	case log.TextFormat, log.JSONFormat:
	default:
		return errors.InvalidInput("unsupported log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateEmbedder() error {
	e := &c.Embedder
	e.Provider = strings.ToLower(e.Provider)
	if e.Dimensions <= 0 {
		return errors.InvalidInput("embedder dimensions must be positive, got %d", e.Dimensions)
	}

	switch e.Provider {
	case "", ProviderHash:
		e.Provider = ProviderHash
	case ProviderOpenAI:
		if e.OpenAI.APIKey == "" {
			return errors.InvalidInput("OpenAI API key is required for openai embedder")
		}
	default:
		return errors.InvalidInput("unsupported embedder provider: %s", e.Provider)
	}

	if e.Cache.Enabled && e.Cache.MaxEntries <= 0 {
		e.Cache.MaxEntries = DefaultCacheEntries
	}
	return nil
}

func (c *Config) validateVectorStore() error {
	v := &c.VectorStore
	v.Provider = strings.ToLower(v.Provider)

	switch v.Provider {
	case "", ProviderMemory:
		v.Provider = ProviderMemory
	case ProviderBoltDB:
		if v.BoltDB.Path == "" {
			return errors.InvalidInput("path is required for boltdb vector store")
		}
	case ProviderChromemGo:
		// An empty storage path keeps the collection in memory
	case ProviderPgVector:
		if v.PgVector.ConnectionString == "" {
			return errors.InvalidInput("connection string is required for pgvector vector store")
		}
		if v.PgVector.TableName == "" {
			v.PgVector.TableName = DefaultPgVectorTable
		}
	default:
		return errors.InvalidInput("unsupported vector store provider: %s", v.Provider)
	}
	return nil
}

func (c *Config) validateReasoning() error {
	r := &c.Reasoning
	r.Provider = strings.ToLower(r.Provider)

	switch r.Provider {
	case "", ProviderNone:
		r.Provider = ProviderNone
	case ProviderMock:
	case ProviderOpenAI:
		if r.OpenAI.APIKey == "" {
			return errors.InvalidInput("OpenAI API key is required for openai provider")
		}
	case ProviderAnthropic:
		if r.Anthropic.APIKey == "" {
			return errors.InvalidInput("Anthropic API key is required for anthropic provider")
		}
	default:
		return errors.InvalidInput("unsupported reasoning provider: %s", r.Provider)
	}

	if r.Temperature < 0 || r.Temperature > 1.0 {
		return errors.InvalidInput("temperature must be within [0, 1], got %v", r.Temperature)
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return nil
}

func (c *Config) validateHistory() error {
	h := &c.History
	h.Provider = strings.ToLower(h.Provider)

	switch h.Provider {
	case "", ProviderMemory:
		h.Provider = ProviderMemory
	case ProviderNone:
	case ProviderSQLite:
		if h.SQLite.Path == "" {
			return errors.InvalidInput("path is required for sqlite history")
		}
	case ProviderPostgres:
		if h.Postgres.DSN == "" {
			return errors.InvalidInput("dsn is required for postgres history")
		}
	default:
		return errors.InvalidInput("unsupported history provider: %s", h.Provider)
	}
	return nil
}
