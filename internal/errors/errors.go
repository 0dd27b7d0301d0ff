package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the notes worker
 *
 * Configuration errors abort a batch before any page is touched.
 * Geometry, integrity and IO errors abort one document; the batch continues.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
	ErrorGeometryInvalid      ErrorCode = "GEOMETRY_INVALID"
	ErrorIntegrityViolation   ErrorCode = "INTEGRITY_VIOLATION"
	ErrorIOFailed             ErrorCode = "IO_FAILED"

	// Processing errors
	ErrorProcessingTimeout   ErrorCode = "PROCESSING_TIMEOUT"
	ErrorProcessingCancelled ErrorCode = "PROCESSING_CANCELLED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a queue should try the job again.
// Bad input stays bad on every attempt.
func (e *ProcessingError) Retryable() bool {
	switch e.Code {
	case ErrorConfigurationInvalid, ErrorGeometryInvalid, ErrorIntegrityViolation, ErrorProcessingCancelled:
		return false
	}
	return true
}

// WithJobID returns a copy of the error tagged with a job ID.
func (e *ProcessingError) WithJobID(jobID string) *ProcessingError {
	c := *e
	c.JobID = jobID
	return &c
}

// Factory functions for common errors

func NewConfigurationError(field string, value string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorConfigurationInvalid,
		Message:   fmt.Sprintf("invalid %s %q: %s", field, value, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"field": field,
			"value": value,
		},
	}
}

func NewGeometryError(page int, message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorGeometryInvalid,
		Message:   fmt.Sprintf("page %d: %s", page, message),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page": page,
		},
	}
}

func NewIntegrityError(originalPages, intermediatePages int) *ProcessingError {
	return &ProcessingError{
		Code: ErrorIntegrityViolation,
		Message: fmt.Sprintf("page count changed during normalization: original=%d intermediate=%d",
			originalPages, intermediatePages),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"original_pages":     originalPages,
			"intermediate_pages": intermediatePages,
		},
	}
}

func NewIOError(operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorIOFailed,
		Message:   fmt.Sprintf("%s failed", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewCancelledError(page, pageCount int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingCancelled,
		Message:   fmt.Sprintf("cancelled after %d of %d pages", page, pageCount),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"pages_done":  page,
			"pages_total": pageCount,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain,
// or the empty code if there is none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// As returns the first ProcessingError in err's chain.
func As(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HasCode reports whether err's chain carries a ProcessingError with code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether err should be retried by a queue.
// Errors outside the taxonomy are treated as transient.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
