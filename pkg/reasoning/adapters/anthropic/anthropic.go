// Package anthropic implements reasoning.Engine on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	recallerrors "github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
)

// ErrEmptyAPIKey is returned when the API key is missing.
var ErrEmptyAPIKey = errors.New("API key cannot be empty")

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-3-5-haiku-latest"

// jsonInstruction is appended to the system prompt in JSON mode; the Messages API has no response format switch.
const jsonInstruction = "Respond with a single valid JSON object and nothing else."

// Config holds the configuration for the Anthropic adapter.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Adapter implements reasoning.Engine.
type Adapter struct {
	client anthropic.Client
	model  string
}

var _ reasoning.Engine = (*Adapter)(nil)

// New creates an Anthropic adapter.
func New(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Adapter{
		client: anthropic.NewClient(opts...),
		model:  config.Model,
	}, nil
}

// Generate sends messages to the Messages API and joins the text blocks of the reply.
// System messages are folded into the request's system prompt.
func (a *Adapter) Generate(ctx context.Context, messages []model.Message, opts ...reasoning.Option) (string, error) {
	options := reasoning.Apply(opts...)

	modelName := a.model
	if options.Model != "" {
		modelName = options.Model
	}

	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if options.JSONMode {
		system = append(system, jsonInstruction)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelName),
		MaxTokens:   int64(options.MaxTokens),
		Messages:    turns,
		Temperature: anthropic.Float(options.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}

	log.Debug("Processing messages request", "model", modelName, "messages", len(turns), "json", options.JSONMode)

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		log.Error("Failed to generate message", "error", err)
		return "", recallerrors.LLM(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", recallerrors.LLM(errors.New("no text content returned"))
	}

	log.Debug("Successfully generated response",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"model", modelName)

	return strings.TrimSpace(b.String()), nil
}
