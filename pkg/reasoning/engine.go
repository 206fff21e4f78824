package reasoning

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/model"
)

// Option is a function that configures a generation request.
type Option func(*Options)

// Options holds configuration for a generation request.
type Options struct {
	// Temperature controls randomness in generation (0.0-1.0)
	Temperature float64

	// MaxTokens limits the length of the generated response
	MaxTokens int

	// Model specifies which model variant to use
	Model string

	// JSONMode asks the provider for a JSON object response where supported
	JSONMode bool
}

// DefaultOptions returns default generation options.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.1,
		MaxTokens:   1024,
		Model:       "", // Empty means use the adapter's default
	}
}

// Apply returns DefaultOptions with opts applied.
func Apply(opts ...Option) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithTemperature sets the temperature option.
func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// WithMaxTokens sets the max tokens option.
func WithMaxTokens(tokens int) Option {
	return func(o *Options) {
		o.MaxTokens = tokens
	}
}

// WithModel sets the model option.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithJSONMode requests a JSON object response.
func WithJSONMode() Option {
	return func(o *Options) {
		o.JSONMode = true
	}
}

// Engine is the interface for language model backends.
type Engine interface {
	// Generate sends the conversation to the model and returns its text reply.
	Generate(ctx context.Context, messages []model.Message, opts ...Option) (string, error)
}

// GenerateJSON runs Generate in JSON mode and decodes the reply into out.
// Replies wrapped in Markdown code fences are accepted.
func GenerateJSON(ctx context.Context, engine Engine, messages []model.Message, out any, opts ...Option) error {
	opts = append(opts, WithJSONMode())
	reply, err := engine.Generate(ctx, messages, opts...)
	if err != nil {
		return errors.LLM(err)
	}

	body := StripCodeFence(reply)
	if body == "" {
		return errors.Wrap(errors.ErrLLM, "empty response from model")
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return errors.LLM(errors.Wrap(err, "failed to parse model response as JSON"))
	}
	return nil
}

// StripCodeFence removes a surrounding ``` or ```json fence and trims whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening line
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
