package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a memory with the requested id does not exist
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidInput is returned when the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch is returned when an embedding has the wrong length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbedding is returned when the embedding provider fails
	ErrEmbedding = errors.New("embedding error")

	// ErrLLM is returned when the language model fails or returns unparseable output
	ErrLLM = errors.New("llm error")

	// ErrStoreUnavailable is returned when a backing store cannot be reached
	ErrStoreUnavailable = errors.New("memory store unavailable")
)

// DimensionMismatchError carries the expected and actual embedding lengths.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is lets errors.Is match ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// NotFoundError carries the id that could not be found.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory with id %s not found", e.ID)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DimensionMismatch returns a *DimensionMismatchError.
func DimensionMismatch(expected, actual int) error {
	return &DimensionMismatchError{Expected: expected, Actual: actual}
}

// NotFound returns a *NotFoundError for id.
func NotFound(id string) error {
	return &NotFoundError{ID: id}
}

// InvalidInput returns an error wrapping ErrInvalidInput with a message
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Embedding marks err as an embedding provider failure.
// It returns nil when err is nil.
func Embedding(err error) error {
	if err == nil || errors.Is(err, ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}

// LLM marks err as a language model failure.
// It returns nil when err is nil.
func LLM(err error) error {
	if err == nil || errors.Is(err, ErrLLM) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLLM, err)
}

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
