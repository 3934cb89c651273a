// Package shared provides domain types and errors used across the gateway.
package shared

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a collaborator failure with the operation that failed.
// Security-critical reads treat any StoreError as grounds for rejection
// (fail closed).
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrStoreUnavailable for any StoreError.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// NewStoreError creates a StoreError for a failed collaborator call.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStoreUnavailable checks if the error is a collaborator failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
