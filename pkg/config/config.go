package config

import (
	"github.com/lexlapax/recall/pkg/log"
)

// Provider names accepted in configuration.
const (
	ProviderHash      = "hash"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
	ProviderNone      = "none"
	ProviderMemory    = "memory"
	ProviderBoltDB    = "boltdb"
	ProviderChromemGo = "chromemgo"
	ProviderPgVector  = "pgvector"
	ProviderSQLite    = "sqlite"
	ProviderPostgres  = "postgres"
)

// Defaults
const (
	DefaultCollectionName      = "memories"
	DefaultDimensions          = 128
	DefaultMaxResults          = 10
	DefaultSimilarityThreshold = float32(0.2)
	DefaultPgVectorTable       = "memories"
	DefaultCacheEntries        = 10000
	DefaultMaxTokens           = 1024
	DefaultTemperature         = 0.1
	DefaultScriptTimeoutMs     = 1000
)

// Config represents the top-level configuration for a memory instance.
type Config struct {
	// CollectionName namespaces the vector store
	CollectionName string `yaml:"collection_name"`

	// Embedder configures how text becomes vectors
	Embedder EmbedderConfig `yaml:"embedder"`

	// VectorStore configures where memories are kept
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Search bounds search results
	Search SearchConfig `yaml:"search"`

	// Reasoning configures the language model; without one every add is stored as is
	Reasoning ReasoningConfig `yaml:"reasoning"`

	// History configures the change log
	History HistoryConfig `yaml:"history"`

	// Logging configures the logging behavior
	Logging log.Config `yaml:"logging"`

	// Scripting loads Lua hook scripts; without paths no scripts run
	Scripting ScriptingConfig `yaml:"scripting"`
}

// ScriptingConfig configures the Lua hook scripts.
type ScriptingConfig struct {
	// Paths lists .lua files and directories holding them
	Paths []string `yaml:"paths"`

	// TimeoutMs bounds one hook call
	TimeoutMs int `yaml:"timeout_ms"`

	// Unsandboxed gives scripts the io, os and package libraries
	Unsandboxed bool `yaml:"unsandboxed"`
}

// EmbedderConfig configures the embedder.
type EmbedderConfig struct {
	// Provider is "hash" or "openai"
	Provider string `yaml:"provider"`

	// Dimensions is the embedding length every stored vector must have
	Dimensions int `yaml:"dimensions"`

	// OpenAI configures the OpenAI embeddings API
	OpenAI OpenAIConfig `yaml:"openai"`

	// Cache memoizes embeddings by text
	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Provider is "memory", "boltdb", "chromemgo" or "pgvector"
	Provider string `yaml:"provider"`

	BoltDB    BoltDBConfig    `yaml:"boltdb"`
	ChromemGo ChromemGoConfig `yaml:"chromemgo"`
	PgVector  PgVectorConfig  `yaml:"pgvector"`
}

// BoltDBConfig configures the bbolt store.
type BoltDBConfig struct {
	// Path is the database file
	Path string `yaml:"path"`
}

// ChromemGoConfig configures the chromem-go store.
type ChromemGoConfig struct {
	// StoragePath is the directory for persistent storage (if empty, in-memory is used)
	StoragePath string `yaml:"storage_path"`

	// Compress gzips persisted documents
	Compress bool `yaml:"compress"`
}

// PgVectorConfig configures PostgreSQL with the pgvector extension.
type PgVectorConfig struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string `yaml:"connection_string"`

	// TableName is the name of the table to use
	TableName string `yaml:"table_name"`
}

// SearchConfig bounds searches.
type SearchConfig struct {
	// MaxResults is the default and maximum number of results
	MaxResults int `yaml:"max_results"`

	// SimilarityThreshold is the inclusive lower bound on similarity scores
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
}

// ReasoningConfig configures the reasoning engine (LLM).
type ReasoningConfig struct {
	// Provider is "openai", "anthropic", "mock" or "none"; empty means none
	Provider string `yaml:"provider"`

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`

	// Temperature controls randomness in generation (0.0-1.0)
	Temperature float64 `yaml:"temperature"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `yaml:"max_tokens"`
}

// OpenAIConfig configures OpenAI integration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the OpenAI model to use
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig configures Anthropic integration.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key
	APIKey string `yaml:"api_key"`

	// Model is the Anthropic model to use
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint
	BaseURL string `yaml:"base_url"`
}

// HistoryConfig configures the history store.
type HistoryConfig struct {
	// Provider is "memory", "sqlite", "postgres" or "none"
	Provider string `yaml:"provider"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures SQLite history storage.
type SQLiteConfig struct {
	// Path is the database file
	Path string `yaml:"path"`
}

// PostgresConfig configures PostgreSQL history storage.
type PostgresConfig struct {
	// DSN is the data source name (connection string)
	DSN string `yaml:"dsn"`
}

// Default returns a configuration that runs entirely in process.
func Default() Config {
	return Config{
		CollectionName: DefaultCollectionName,
		Embedder: EmbedderConfig{
			Provider:   ProviderHash,
			Dimensions: DefaultDimensions,
			Cache:      CacheConfig{MaxEntries: DefaultCacheEntries},
		},
		VectorStore: VectorStoreConfig{
			Provider: ProviderMemory,
			PgVector: PgVectorConfig{TableName: DefaultPgVectorTable},
		},
		Search: SearchConfig{
			MaxResults:          DefaultMaxResults,
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		Reasoning: ReasoningConfig{
			Provider:    ProviderNone,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		History: HistoryConfig{
			Provider: ProviderMemory,
		},
		Logging:   log.DefaultConfig(),
		Scripting: ScriptingConfig{TimeoutMs: DefaultScriptTimeoutMs},
	}
}
