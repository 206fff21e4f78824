package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	meta := map[string]any{"source": "chat", "tags": []any{"a", "b"}}
	rec := NewRecord("likes tea", meta, Scope{UserID: "alice"})

	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "likes tea", rec.Content)
	assert.Equal(t, "alice", rec.UserID)
	assert.Empty(t, rec.AgentID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, rec.UpdatedAt.IsZero())

	// The record owns its metadata
	meta["source"] = "changed"
	assert.Equal(t, "chat", rec.Metadata["source"])

	other := NewRecord("likes tea", nil, Scope{})
	assert.NotEqual(t, rec.ID, other.ID)
}

func TestClone(t *testing.T) {
	rec := MemoryRecord{
		ID:       "1",
		Metadata: map[string]any{"nested": map[string]any{"k": "v"}},
	}
	cp := rec.Clone()
	cp.Metadata["nested"].(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", rec.Metadata["nested"].(map[string]any)["k"])
}

func TestScopeMatches(t *testing.T) {
	rec := MemoryRecord{UserID: "alice", AgentID: "bot"}

	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"empty scope matches everything", Scope{}, true},
		{"user matches", Scope{UserID: "alice"}, true},
		{"user and agent match", Scope{UserID: "alice", AgentID: "bot"}, true},
		{"user differs", Scope{UserID: "bob"}, false},
		{"run required but absent", Scope{UserID: "alice", RunID: "r1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Matches(rec))
		})
	}
}

func TestScopeContext(t *testing.T) {
	ctx := context.Background()

	_, ok := ScopeFromContext(ctx)
	assert.False(t, ok)
	assert.True(t, ResolveScope(ctx, Scope{}).IsZero())

	ctx = ContextWithScope(ctx, Scope{UserID: "alice"})
	scope, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", scope.UserID)

	assert.Equal(t, "alice", ResolveScope(ctx, Scope{}).UserID)
	assert.Equal(t, "bob", ResolveScope(ctx, Scope{UserID: "bob"}).UserID)
}

func TestTranscript(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be nice"},
		UserMessage("I love pizza"),
		{Role: RoleAssistant, Content: "Noted"},
	}
	assert.Equal(t, "system: be nice\nuser: I love pizza\nassistant: Noted", Transcript(msgs))
	assert.Empty(t, Transcript(nil))
}
