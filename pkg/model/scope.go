package model

import (
	"context"
)

// Scope identifies the owner of a set of memories. Empty fields are unconstrained.
type Scope struct {
	UserID  string `json:"user_id,omitempty" yaml:"user_id"`
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id"`
	RunID   string `json:"run_id,omitempty" yaml:"run_id"`
}

// IsZero reports whether no scoping attribute is set.
func (s Scope) IsZero() bool {
	return s.UserID == "" && s.AgentID == "" && s.RunID == ""
}

// Matches reports whether every non-empty attribute of s equals the record's.
func (s Scope) Matches(rec MemoryRecord) bool {
	if s.UserID != "" && rec.UserID != s.UserID {
		return false
	}
	if s.AgentID != "" && rec.AgentID != s.AgentID {
		return false
	}
	if s.RunID != "" && rec.RunID != s.RunID {
		return false
	}
	return true
}

// Apply copies the non-empty attributes of s onto rec.
func (s Scope) Apply(rec *MemoryRecord) {
	if s.UserID != "" {
		rec.UserID = s.UserID
	}
	if s.AgentID != "" {
		rec.AgentID = s.AgentID
	}
	if s.RunID != "" {
		rec.RunID = s.RunID
	}
}

// contextKey is a private type for context keys to avoid collisions
type contextKey int

const (
	// scopeKey is the key for storing a Scope in a context.Context
	scopeKey contextKey = iota
)

// ContextWithScope adds a Scope to a context.Context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext retrieves the Scope from a context.Context.
// If no Scope is found, it returns a zero Scope and false.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(Scope)
	return scope, ok
}

// ResolveScope returns explicit when it is set, otherwise the Scope carried by ctx.
func ResolveScope(ctx context.Context, explicit Scope) Scope {
	if !explicit.IsZero() {
		return explicit
	}
	scope, _ := ScopeFromContext(ctx)
	return scope
}
