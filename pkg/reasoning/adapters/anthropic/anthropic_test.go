package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
	"github.com/lexlapax/recall/pkg/reasoning/adapters/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAnthropicServer serves the Messages API and records the last request body.
func mockAnthropicServer(t *testing.T, statusCode int, responseBody string, lastBody *map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		if lastBody != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, lastBody))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, err := w.Write([]byte(responseBody))
		require.NoError(t, err)
	}))
}

func messageResponse(text string) string {
	encoded, _ := json.Marshal(text)
	return `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-latest",
		"content": [{"type": "text", "text": ` + string(encoded) + `}],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 12, "output_tokens": 6}
	}`
}

func TestGenerate_Success(t *testing.T) {
	var body map[string]any
	server := mockAnthropicServer(t, http.StatusOK, messageResponse("Hello there"), &body)
	defer server.Close()

	adapter, err := anthropic.New(anthropic.Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	reply, err := adapter.Generate(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		model.UserMessage("hi"),
		{Role: model.RoleAssistant, Content: "hello"},
		model.UserMessage("how are you?"),
	}, reasoning.WithMaxTokens(128))
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)

	assert.Equal(t, anthropic.DefaultModel, body["model"])
	assert.EqualValues(t, 128, body["max_tokens"])

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])

	turns, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, turns, 3)
	assert.Equal(t, "user", turns[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", turns[1].(map[string]any)["role"])
}

func TestGenerateJSON_FencedReply(t *testing.T) {
	var body map[string]any
	server := mockAnthropicServer(t, http.StatusOK, messageResponse("```json\n{\"facts\": [\"likes tea\"]}\n```"), &body)
	defer server.Close()

	adapter, err := anthropic.New(anthropic.Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	var out struct {
		Facts []string `json:"facts"`
	}
	err = reasoning.GenerateJSON(context.Background(), adapter, []model.Message{model.UserMessage("I like tea")}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"likes tea"}, out.Facts)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Contains(t, system[0].(map[string]any)["text"], "JSON")
}

func TestGenerate_APIError(t *testing.T) {
	errorResponse := `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`
	server := mockAnthropicServer(t, http.StatusUnauthorized, errorResponse, nil)
	defer server.Close()

	adapter, err := anthropic.New(anthropic.Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = adapter.Generate(context.Background(), []model.Message{model.UserMessage("hi")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLLM))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	adapter, err := anthropic.New(anthropic.Config{})
	assert.ErrorIs(t, err, anthropic.ErrEmptyAPIKey)
	assert.Nil(t, adapter)
}
