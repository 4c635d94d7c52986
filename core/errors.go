package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is().
// These are generic errors that can be wrapped with additional context.
var (
	// Transient operational errors (retryable)
	ErrTimeout           = errors.New("operation timeout")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrEngineUnavailable = errors.New("inference engine unavailable")
	ErrEngineOverloaded  = errors.New("inference engine overloaded")

	// Retry / circuit breaker errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// Persistence errors
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointWrite    = errors.New("checkpoint write failed")

	// Arbitration errors
	ErrConflictNotFound = errors.New("conflict not found")
	ErrRegionNotFound   = errors.New("region not found")

	// Capability tier errors
	ErrTierUnavailable = errors.New("capability tier unavailable")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// State errors
	ErrContextCanceled = errors.New("context canceled")
)

// PipelineError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type PipelineError struct {
	Op    string // Operation that failed (e.g., "checkpoint.Save")
	Kind  string // Error kind (e.g., "persistence", "transient", "arbitration")
	DocID string // Optional document identifier involved
	Err   error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *PipelineError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.DocID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.DocID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(op, kind string, err error) *PipelineError {
	return &PipelineError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrEngineUnavailable) ||
		errors.Is(err, ErrEngineOverloaded)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound) ||
		errors.Is(err, ErrConflictNotFound) ||
		errors.Is(err, ErrRegionNotFound)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
