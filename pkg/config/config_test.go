package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvOpenAIAPIKey, EnvAnthropicAPIKey, EnvPgVectorURL, EnvHistoryDSN} {
		t.Setenv(k, "")
	}
}

func TestLoadFromBytes_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromBytes([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, DefaultCollectionName, cfg.CollectionName)
	assert.Equal(t, ProviderHash, cfg.Embedder.Provider)
	assert.Equal(t, DefaultDimensions, cfg.Embedder.Dimensions)
	assert.Equal(t, ProviderMemory, cfg.VectorStore.Provider)
	assert.Equal(t, DefaultMaxResults, cfg.Search.MaxResults)
	assert.Equal(t, DefaultSimilarityThreshold, cfg.Search.SimilarityThreshold)
	assert.Equal(t, ProviderNone, cfg.Reasoning.Provider)
	assert.Equal(t, ProviderMemory, cfg.History.Provider)
	assert.Equal(t, log.InfoLevel, cfg.Logging.Level)
	assert.Empty(t, cfg.Scripting.Paths)
	assert.Equal(t, DefaultScriptTimeoutMs, cfg.Scripting.TimeoutMs)
}

func TestLoadFromBytes_Full(t *testing.T) {
	clearEnv(t)

	data := []byte(`
collection_name: agent_memories
embedder:
  provider: OpenAI
  dimensions: 256
  openai:
    api_key: sk-embed
    model: text-embedding-3-large
  cache:
    enabled: true
vector_store:
  provider: pgvector
  pgvector:
    connection_string: postgres://localhost/recall
search:
  max_results: 3
  similarity_threshold: 0
reasoning:
  provider: anthropic
  anthropic:
    api_key: sk-ant
  temperature: 0.5
history:
  provider: sqlite
  sqlite:
    path: /tmp/history.db
logging:
  level: debug
  format: json
scripting:
  paths: [./scripts, ./extra/redact.lua]
  timeout_ms: 250
`)

	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, "agent_memories", cfg.CollectionName)
	assert.Equal(t, ProviderOpenAI, cfg.Embedder.Provider)
	assert.Equal(t, 256, cfg.Embedder.Dimensions)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.True(t, cfg.Embedder.Cache.Enabled)
	assert.Equal(t, DefaultCacheEntries, cfg.Embedder.Cache.MaxEntries)

	assert.Equal(t, ProviderPgVector, cfg.VectorStore.Provider)
	assert.Equal(t, DefaultPgVectorTable, cfg.VectorStore.PgVector.TableName)

	assert.Equal(t, 3, cfg.Search.MaxResults)
	// An explicit zero threshold is kept
	assert.Equal(t, float32(0), cfg.Search.SimilarityThreshold)

	assert.Equal(t, ProviderAnthropic, cfg.Reasoning.Provider)
	assert.Equal(t, 0.5, cfg.Reasoning.Temperature)
	assert.Equal(t, DefaultMaxTokens, cfg.Reasoning.MaxTokens)

	assert.Equal(t, ProviderSQLite, cfg.History.Provider)
	assert.Equal(t, log.DebugLevel, cfg.Logging.Level)
	assert.Equal(t, log.JSONFormat, cfg.Logging.Format)
	assert.Equal(t, []string{"./scripts", "./extra/redact.lua"}, cfg.Scripting.Paths)
	assert.Equal(t, 250, cfg.Scripting.TimeoutMs)
	assert.False(t, cfg.Scripting.Unsandboxed)
}

func TestLoadFromBytes_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	t.Setenv(EnvAnthropicAPIKey, "sk-ant-env")
	t.Setenv(EnvPgVectorURL, "postgres://env/recall")
	t.Setenv(EnvHistoryDSN, "postgres://env/history")

	cfg, err := LoadFromBytes([]byte(`
embedder:
  provider: openai
vector_store:
  provider: pgvector
reasoning:
  provider: openai
  openai:
    api_key: sk-file
history:
  provider: postgres
`))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Embedder.OpenAI.APIKey)
	assert.Equal(t, "sk-env", cfg.Reasoning.OpenAI.APIKey)
	assert.Equal(t, "sk-ant-env", cfg.Reasoning.Anthropic.APIKey)
	assert.Equal(t, "postgres://env/recall", cfg.VectorStore.PgVector.ConnectionString)
	assert.Equal(t, "postgres://env/history", cfg.History.Postgres.DSN)
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		yaml string
	}{
		{"zero dimensions", "embedder: {dimensions: 0}"},
		{"unknown embedder", "embedder: {provider: word2vec}"},
		{"openai embedder without key", "embedder: {provider: openai}"},
		{"unknown store", "vector_store: {provider: redis}"},
		{"boltdb without path", "vector_store: {provider: boltdb}"},
		{"pgvector without url", "vector_store: {provider: pgvector}"},
		{"threshold out of range", "search: {similarity_threshold: 1.5}"},
		{"unknown reasoning", "reasoning: {provider: llama}"},
		{"openai without key", "reasoning: {provider: openai}"},
		{"anthropic without key", "reasoning: {provider: anthropic}"},
		{"temperature out of range", "reasoning: {provider: mock, temperature: 1.7}"},
		{"sqlite without path", "history: {provider: sqlite}"},
		{"postgres without dsn", "history: {provider: postgres}"},
		{"unknown history", "history: {provider: mongo}"},
		{"bad log level", "logging: {level: verbose}"},
		{"bad log format", "logging: {format: xml}"},
		{"negative script timeout", "scripting: {timeout_ms: -5}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput), err.Error())
		})
	}

	_, err := LoadFromBytes([]byte("embedder: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection_name: from_file\n"), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.CollectionName)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("RECALL_TEST_FROM_FILE=loaded\nRECALL_TEST_PRESET=file\n"), 0o600))

	t.Setenv("RECALL_TEST_PRESET", "process")
	t.Cleanup(func() { os.Unsetenv("RECALL_TEST_FROM_FILE") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envPath))
	assert.Equal(t, "loaded", os.Getenv("RECALL_TEST_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("RECALL_TEST_PRESET"))
}
