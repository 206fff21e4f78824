package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/model"
)

var (
	envOnce sync.Once
	celEnv  *cel.Env
	envErr  error

	// programs caches compiled expressions by source text
	programs sync.Map
)

func env() (*cel.Env, error) {
	envOnce.Do(func() {
		celEnv, envErr = cel.NewEnv(
			cel.Variable(FieldID, cel.StringType),
			cel.Variable(FieldContent, cel.StringType),
			cel.Variable(FieldUserID, cel.StringType),
			cel.Variable(FieldAgentID, cel.StringType),
			cel.Variable(FieldRunID, cel.StringType),
			cel.Variable(FieldCreatedAt, cel.TimestampType),
			cel.Variable(FieldUpdatedAt, cel.TimestampType),
			cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, envErr
}

func compile(expr string) (cel.Program, error) {
	if prg, ok := programs.Load(expr); ok {
		return prg.(cel.Program), nil
	}

	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, iss := e.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.InvalidInput("invalid filter expression %q: %v", expr, iss.Err())
	}

	prg, err := e.Program(ast)
	if err != nil {
		return nil, errors.InvalidInput("invalid filter expression %q: %v", expr, err)
	}

	programs.Store(expr, prg)
	return prg, nil
}

func evalExpression(expr string, rec model.MemoryRecord) (bool, error) {
	prg, err := compile(expr)
	if err != nil {
		return false, err
	}

	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{
		FieldID:        rec.ID,
		FieldContent:   rec.Content,
		FieldUserID:    rec.UserID,
		FieldAgentID:   rec.AgentID,
		FieldRunID:     rec.RunID,
		FieldCreatedAt: rec.CreatedAt,
		FieldUpdatedAt: rec.UpdatedAt,
		"metadata":     metadata,
	})
	if err != nil {
		// Missing metadata keys and type errors simply do not match
		return false, nil
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, errors.InvalidInput("filter expression %q is not boolean", expr)
	}
	return b, nil
}
