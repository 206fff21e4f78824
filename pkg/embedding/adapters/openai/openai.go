package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	recallerrors "github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/vector"
)

// ErrEmptyAPIKey is returned when the API key is missing.
var ErrEmptyAPIKey = errors.New("API key cannot be empty")

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-small"

// Config holds the configuration for the OpenAI embedder.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the embedding model, e.g. "text-embedding-3-small".
	Model string
	// Dimensions is the requested vector size. Zero keeps the model's native size.
	Dimensions int
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// Embedder implements embedding.Embedder using the OpenAI embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
	dims   int
}

// New creates an OpenAI embedder.
func New(config Config) (*Embedder, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Embedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		dims:   config.Dimensions,
	}, nil
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	log.Debug("Generating embedding", "model", e.model, "chars", len(text))

	response, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	})
	if err != nil {
		log.Error("Failed to generate embedding", "error", err)
		return nil, recallerrors.Embedding(err)
	}

	if len(response.Data) == 0 {
		return nil, recallerrors.Embedding(fmt.Errorf("no embedding returned by model %s", e.model))
	}

	emb := response.Data[0].Embedding
	if err := vector.CheckDims(e.dims, emb); err != nil {
		return nil, recallerrors.Embedding(err)
	}

	return emb, nil
}
