package model

import (
	"time"

	"github.com/google/uuid"
)

// MemoryRecord represents a single stored memory.
type MemoryRecord struct {
	// ID is a unique identifier for the record and never changes after creation
	ID string `json:"id"`

	// Content is the memory text
	Content string `json:"content"`

	// Metadata is opaque caller data carried alongside the memory
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when this memory was initially stored and never changes
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the content was last replaced; zero if never updated
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// Scoping attributes, all optional
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// NewRecord creates a record with a fresh UUID and creation time.
// The metadata map is copied.
func NewRecord(content string, metadata map[string]any, scope Scope) MemoryRecord {
	rec := MemoryRecord{
		ID:        uuid.NewString(),
		Content:   content,
		Metadata:  CloneMetadata(metadata),
		CreatedAt: time.Now().UTC(),
	}
	scope.Apply(&rec)
	return rec
}

// Scope returns the scoping attributes of the record.
func (r MemoryRecord) Scope() Scope {
	return Scope{UserID: r.UserID, AgentID: r.AgentID, RunID: r.RunID}
}

// Clone returns a deep copy of the record.
func (r MemoryRecord) Clone() MemoryRecord {
	r.Metadata = CloneMetadata(r.Metadata)
	return r
}

// CloneMetadata copies a metadata map, descending into nested maps and slices.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMetadata(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = cloneValue(item)
		}
		return cp
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// ScoredMemory is a search hit: a record plus its cosine similarity to the query.
type ScoredMemory struct {
	Record MemoryRecord `json:"memory"`
	Score  float32      `json:"score"`
}
