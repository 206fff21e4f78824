package reasoning_test

import (
	"context"
	"testing"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
	"github.com/lexlapax/recall/pkg/reasoning/adapters/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", ` {"a": 1} `, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```\n", `{"a": 1}`},
		{"unterminated fence", "```json\n{\"a\": 1}", `{"a": 1}`},
		{"fence only", "```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reasoning.StripCodeFence(tt.in))
		})
	}
}

func TestApplyOptions(t *testing.T) {
	opts := reasoning.Apply()
	assert.Equal(t, reasoning.DefaultOptions(), opts)

	opts = reasoning.Apply(
		reasoning.WithTemperature(0.9),
		reasoning.WithMaxTokens(10),
		reasoning.WithModel("m"),
		reasoning.WithJSONMode(),
	)
	assert.Equal(t, 0.9, opts.Temperature)
	assert.Equal(t, 10, opts.MaxTokens)
	assert.Equal(t, "m", opts.Model)
	assert.True(t, opts.JSONMode)
}

type factsResponse struct {
	Facts []string `json:"facts"`
}

func TestGenerateJSON(t *testing.T) {
	ctx := context.Background()
	in := []model.Message{model.UserMessage("hello")}

	t.Run("decodes and requests JSON mode", func(t *testing.T) {
		engine := mock.NewMockEngine(mock.WithResponses("```json\n{\"facts\": [\"a\", \"b\"]}\n```"))
		var out factsResponse
		require.NoError(t, reasoning.GenerateJSON(ctx, engine, in, &out))
		assert.Equal(t, []string{"a", "b"}, out.Facts)
		assert.True(t, engine.GetCallHistory()[0].Options.JSONMode)
	})

	t.Run("malformed reply is an LLM error", func(t *testing.T) {
		engine := mock.NewMockEngine(mock.WithResponses("sorry, I cannot do that"))
		var out factsResponse
		err := reasoning.GenerateJSON(ctx, engine, in, &out)
		assert.True(t, errors.Is(err, errors.ErrLLM))
	})

	t.Run("empty reply is an LLM error", func(t *testing.T) {
		engine := mock.NewMockEngine(mock.WithResponses("  "))
		var out factsResponse
		err := reasoning.GenerateJSON(ctx, engine, in, &out)
		assert.True(t, errors.Is(err, errors.ErrLLM))
	})

	t.Run("engine failure is an LLM error", func(t *testing.T) {
		engine := mock.NewMockEngine(mock.WithError(mock.ErrMock))
		var out factsResponse
		err := reasoning.GenerateJSON(ctx, engine, in, &out)
		assert.True(t, errors.Is(err, errors.ErrLLM))
		assert.True(t, errors.Is(err, mock.ErrMock))
	})
}
