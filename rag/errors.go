package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable reports a backend that could not serve a request
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrExtractionParse reports model output that is not a valid extraction
	ErrExtractionParse = errors.New("extraction output could not be parsed")
	// ErrModelCall reports a completion or embedding call that failed after retries
	ErrModelCall = errors.New("model call failed")
	// ErrDimensionMismatch reports an embedding of the wrong size
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNotFound reports a missing record
	ErrNotFound = errors.New("not found")
	// ErrMissingEndpoint reports an edge whose endpoint node does not exist
	ErrMissingEndpoint = errors.New("relationship endpoint missing")
	// ErrInvalidConfig reports a configuration rejected at construction
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StorageError wraps a backend failure
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

// Unavailable wraps err as a StorageError for backend and op
func Unavailable(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Backend: backend, Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// DimensionError describes an embedding size mismatch
func DimensionError(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, got)
}

// NotFoundError describes a missing record of the given kind
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// IsNotFound reports whether err is a missing-record error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
