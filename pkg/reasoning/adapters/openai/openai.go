package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	recallerrors "github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
)

// ErrEmptyAPIKey is returned when the API key is missing.
var ErrEmptyAPIKey = errors.New("API key cannot be empty")

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Config holds the configuration for the OpenAI adapter.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the chat model, e.g. "gpt-4o-mini".
	Model string
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// OpenAIAdapter implements reasoning.Engine using the OpenAI chat completions API.
type OpenAIAdapter struct {
	client    *openai.Client
	chatModel string
}

var _ reasoning.Engine = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(config Config) (*OpenAIAdapter, error) {
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

	return &OpenAIAdapter{
		client:    openai.NewClientWithConfig(clientConfig),
		chatModel: config.Model,
	}, nil
}

// Generate sends messages to the chat completions endpoint and returns the first choice.
func (a *OpenAIAdapter) Generate(ctx context.Context, messages []model.Message, opts ...reasoning.Option) (string, error) {
	options := reasoning.Apply(opts...)

	chatModel := a.chatModel
	if options.Model != "" {
		chatModel = options.Model
	}

	log.Debug("Processing chat request", "model", chatModel, "messages", len(messages), "json", options.JSONMode)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	request := openai.ChatCompletionRequest{
		Model:       chatModel,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}
	if options.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	response, err := a.client.CreateChatCompletion(ctx, request)
	if err != nil {
		log.Error("Failed to generate chat completion", "error", err)
		return "", recallerrors.LLM(err)
	}
	if len(response.Choices) == 0 {
		return "", recallerrors.LLM(errors.New("no response choices returned"))
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)

	log.Debug("Successfully generated response",
		"tokens", response.Usage.TotalTokens,
		"model", chatModel)

	return content, nil
}
