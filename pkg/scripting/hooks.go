package scripting

import (
	"context"
	"errors"
	"strings"

	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
)

// Hook function names looked up in the loaded scripts. Every hook is optional.
const (
	// HookBeforeEncode is called as before_encode(text, scope) ahead of storing
	// a new memory. A string result replaces the text; false or an empty
	// string drops the memory; nil keeps the text.
	HookBeforeEncode = "before_encode"

	// HookAfterEncode is called as after_encode(memory) once a memory is stored.
	HookAfterEncode = "after_encode"

	// HookBeforeRetrieve is called as before_retrieve(query, scope) ahead of a
	// search. A non-empty string result replaces the query.
	HookBeforeRetrieve = "before_retrieve"

	// HookAfterRetrieve is called as after_retrieve(results) with the ranked
	// results. An array of ids, or of tables with an id field, keeps those
	// results in that order; nil keeps the results.
	HookAfterRetrieve = "after_retrieve"
)

// Hooks calls the lifecycle hooks defined by scripts. A nil *Hooks, or one
// without an engine, leaves every value unchanged. A hook that fails is
// logged and the value it was given is used instead.
type Hooks struct {
	engine Engine
}

// NewHooks returns hooks backed by engine, or nil when engine is nil.
func NewHooks(engine Engine) *Hooks {
	if engine == nil {
		return nil
	}
	return &Hooks{engine: engine}
}

func (h *Hooks) call(ctx context.Context, name string, args ...any) (any, bool) {
	if h == nil || h.engine == nil {
		return nil, false
	}
	result, err := h.engine.ExecuteFunction(ctx, name, args...)
	if err != nil {
		if !errors.Is(err, ErrFunctionNotFound) {
			log.FromContext(ctx).WarnContext(ctx, "Lua hook failed, continuing", "hook", name, "error", err)
		}
		return nil, false
	}
	return result, true
}

// BeforeEncode returns the text to store and false when the memory should be dropped.
func (h *Hooks) BeforeEncode(ctx context.Context, text string, scope model.Scope) (string, bool) {
	result, ok := h.call(ctx, HookBeforeEncode, text, scopeTable(scope))
	if !ok {
		return text, true
	}
	switch v := result.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case bool:
		if !v {
			return "", false
		}
	}
	return text, true
}

// AfterEncode reports a stored memory to scripts.
func (h *Hooks) AfterEncode(ctx context.Context, rec model.MemoryRecord) {
	h.call(ctx, HookAfterEncode, recordTable(rec))
}

// BeforeRetrieve returns the query to search with.
func (h *Hooks) BeforeRetrieve(ctx context.Context, query string, scope model.Scope) string {
	result, ok := h.call(ctx, HookBeforeRetrieve, query, scopeTable(scope))
	if !ok {
		return query
	}
	if s, isString := result.(string); isString && strings.TrimSpace(s) != "" {
		return s
	}
	return query
}

// AfterRetrieve returns the results to hand back. Scripts may drop and
// reorder results but cannot add new ones.
func (h *Hooks) AfterRetrieve(ctx context.Context, results []model.ScoredMemory) []model.ScoredMemory {
	if h == nil || h.engine == nil || len(results) == 0 {
		return results
	}

	tables := make([]any, len(results))
	for i, r := range results {
		t := recordTable(r.Record)
		t["score"] = float64(r.Score)
		tables[i] = t
	}

	result, ok := h.call(ctx, HookAfterRetrieve, tables)
	if !ok {
		return results
	}

	var items []any
	switch v := result.(type) {
	case []any:
		items = v
	case map[string]any:
		// An empty Lua table converts to an empty map
		if len(v) > 0 {
			return results
		}
	default:
		return results
	}

	byID := make(map[string]model.ScoredMemory, len(results))
	for _, r := range results {
		byID[r.Record.ID] = r
	}
	kept := make([]model.ScoredMemory, 0, len(items))
	for _, item := range items {
		id := itemID(item)
		r, found := byID[id]
		if !found {
			continue
		}
		kept = append(kept, r)
		delete(byID, id)
	}
	return kept
}

func itemID(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		id, _ := v["id"].(string)
		return id
	}
	return ""
}

func scopeTable(s model.Scope) map[string]any {
	return map[string]any{
		"user_id":  s.UserID,
		"agent_id": s.AgentID,
		"run_id":   s.RunID,
	}
}

func recordTable(rec model.MemoryRecord) map[string]any {
	t := map[string]any{
		"id":         rec.ID,
		"content":    rec.Content,
		"user_id":    rec.UserID,
		"agent_id":   rec.AgentID,
		"run_id":     rec.RunID,
		"created_at": rec.CreatedAt,
	}
	if len(rec.Metadata) > 0 {
		t["metadata"] = rec.Metadata
	}
	return t
}
