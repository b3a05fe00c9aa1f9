package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	ErrEmptyContent      = errors.New("content is empty")
	ErrMissingID         = errors.New("article id is required")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrSessionNotFound   = errors.New("session not found")
)

// ProviderError wraps a failure from an external provider call boundary
// (embedding, generation, or the vector database). Provider errors are not
// retried automatically; the only recovery path is the batch→per-item
// embedding fallback.
type ProviderError struct {
	Provider string // "embedding", "generation", "vectordb"
	Op       string
	Wrapped  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %s", e.Provider, e.Op, e.Wrapped)
}

func (e *ProviderError) Unwrap() error { return e.Wrapped }

// NewProviderError creates a ProviderError.
func NewProviderError(provider, op string, wrapped error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Wrapped: wrapped}
}

// ValidationError wraps a sentinel with the field and value that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
