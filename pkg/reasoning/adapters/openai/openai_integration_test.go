//go:build integration
// +build integration

package openai_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
	"github.com/lexlapax/recall/pkg/reasoning/adapters/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateJSON(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test; set INTEGRATION_TESTS=true to run")
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test; OPENAI_API_KEY not set")
	}

	adapter, err := openai.NewOpenAIAdapter(openai.Config{APIKey: apiKey})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out struct {
		Facts []string `json:"facts"`
	}
	err = reasoning.GenerateJSON(ctx, adapter, []model.Message{
		{Role: model.RoleSystem, Content: `Reply with a JSON object {"facts": [...]} listing facts about the user.`},
		model.UserMessage("My name is Ada and I prefer tea over coffee."),
	}, &out, reasoning.WithTemperature(0))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Facts)
}
