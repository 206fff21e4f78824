// Package filter implements record predicates used by List, Search and DeleteAll.
package filter

import (
	"reflect"
	"strings"
	"time"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/model"
)

// Operator is a comparison applied by a Condition.
type Operator string

// Supported operators
const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpIn       Operator = "in"
	OpNin      Operator = "nin"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

// Logic combines the conditions of a Filters value.
type Logic string

// Supported logic
const (
	And Logic = "and"
	Or  Logic = "or"
)

// Record fields addressable by a Condition. Any other name refers to a metadata key.
const (
	FieldID        = "id"
	FieldContent   = "content"
	FieldUserID    = "user_id"
	FieldAgentID   = "agent_id"
	FieldRunID     = "run_id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"

	metadataPrefix = "metadata."
)

// Condition compares one record field with a value.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Filters is a predicate over memory records. A nil *Filters matches everything.
type Filters struct {
	// Conditions are combined with Logic; an empty list matches
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions"`

	// Logic defaults to And
	Logic Logic `json:"logic,omitempty" yaml:"logic"`

	// Expression is an optional CEL boolean expression ANDed with the conditions
	Expression string `json:"expression,omitempty" yaml:"expression"`

	// Groups are nested filters that must all match
	Groups []*Filters `json:"groups,omitempty" yaml:"groups"`
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Operator: OpEq, Value: value}
}

// All returns Filters requiring every condition.
func All(conds ...Condition) *Filters {
	return &Filters{Conditions: conds, Logic: And}
}

// Any returns Filters requiring at least one condition.
func Any(conds ...Condition) *Filters {
	return &Filters{Conditions: conds, Logic: Or}
}

// ForScope returns Filters matching the set attributes of scope, or nil for an empty scope.
func ForScope(scope model.Scope) *Filters {
	var conds []Condition
	if scope.UserID != "" {
		conds = append(conds, Eq(FieldUserID, scope.UserID))
	}
	if scope.AgentID != "" {
		conds = append(conds, Eq(FieldAgentID, scope.AgentID))
	}
	if scope.RunID != "" {
		conds = append(conds, Eq(FieldRunID, scope.RunID))
	}
	if len(conds) == 0 {
		return nil
	}
	return All(conds...)
}

// Merge returns Filters requiring both a and b. Either may be nil.
func Merge(a, b *Filters) *Filters {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &Filters{Logic: And, Groups: []*Filters{a, b}}
}

// Validate checks operators and compiles the expression.
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	switch f.Logic {
	case "", And, Or:
	default:
		return errors.InvalidInput("unknown filter logic %q", f.Logic)
	}
	for _, c := range f.Conditions {
		if c.Field == "" {
			return errors.InvalidInput("filter condition without field")
		}
		switch c.Operator {
		case OpEq, OpNe, OpIn, OpNin, OpGt, OpGte, OpLt, OpLte, OpContains:
		default:
			return errors.InvalidInput("unknown filter operator %q", c.Operator)
		}
	}
	if f.Expression != "" {
		if _, err := compile(f.Expression); err != nil {
			return err
		}
	}
	for _, g := range f.Groups {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Match reports whether rec satisfies f.
func Match(f *Filters, rec model.MemoryRecord) (bool, error) {
	if f == nil {
		return true, nil
	}

	ok, err := matchConditions(f, rec)
	if err != nil || !ok {
		return false, err
	}

	for _, g := range f.Groups {
		ok, err := Match(g, rec)
		if err != nil || !ok {
			return false, err
		}
	}

	if f.Expression == "" {
		return true, nil
	}
	return evalExpression(f.Expression, rec)
}

func matchConditions(f *Filters, rec model.MemoryRecord) (bool, error) {
	if len(f.Conditions) == 0 {
		return true, nil
	}

	or := f.Logic == Or
	for _, c := range f.Conditions {
		ok, err := c.Match(rec)
		if err != nil {
			return false, err
		}
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}
	return !or, nil
}

// Match reports whether rec satisfies the condition.
func (c Condition) Match(rec model.MemoryRecord) (bool, error) {
	actual, present := Resolve(rec, c.Field)

	switch c.Operator {
	case OpEq:
		return present && equal(actual, c.Value), nil
	case OpNe:
		return !present || !equal(actual, c.Value), nil
	case OpIn:
		return present && inList(actual, c.Value), nil
	case OpNin:
		return !present || !inList(actual, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false, nil
		}
		cmp, ok := compare(actual, c.Value)
		if !ok {
			return false, nil
		}
		switch c.Operator {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpContains:
		return present && contains(actual, c.Value), nil
	default:
		return false, errors.InvalidInput("unknown filter operator %q", c.Operator)
	}
}

// Resolve returns the value of field on rec and whether it is present.
func Resolve(rec model.MemoryRecord, field string) (any, bool) {
	switch field {
	case FieldID:
		return rec.ID, true
	case FieldContent:
		return rec.Content, true
	case FieldUserID:
		return rec.UserID, rec.UserID != ""
	case FieldAgentID:
		return rec.AgentID, rec.AgentID != ""
	case FieldRunID:
		return rec.RunID, rec.RunID != ""
	case FieldCreatedAt:
		return rec.CreatedAt, true
	case FieldUpdatedAt:
		return rec.UpdatedAt, !rec.UpdatedAt.IsZero()
	}

	key := strings.TrimPrefix(field, metadataPrefix)
	if rec.Metadata == nil {
		return nil, false
	}
	v, ok := rec.Metadata[key]
	return v, ok
}

func equal(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := toTime(b); ok {
			return x.Equal(y)
		}
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if x, ok := a.(time.Time); ok {
		y, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	if x, ok := a.(string); ok {
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func inList(actual, list any) bool {
	for _, item := range toSlice(list) {
		if equal(actual, item) {
			return true
		}
	}
	return false
}

func contains(actual, want any) bool {
	if s, ok := actual.(string); ok {
		sub, ok := want.(string)
		return ok && strings.Contains(s, sub)
	}
	return inList(want, actual)
}

func toSlice(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
