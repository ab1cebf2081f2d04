// Package exception provides the error types used by the batch framework.
// BatchError wraps a cause with the module that raised it; ReadError, TransformError and
// WriteError classify failures of the item pipeline so callers can branch on errors.As.
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// BatchError is a custom error type that occurs during batch processing.
// It holds the module where the error occurred, a message, the wrapped original error,
// and flags indicating whether it is retryable or skippable.
type BatchError struct {
	// Module indicates the module where the error occurred (e.g., "reader", "writer", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError instance.
//
// Parameters:
//
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The original error to wrap.
//	isSkippable: Whether this error is skippable.
//	isRetryable: Whether this error is retryable.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchErrorf creates a fatal BatchError with a formatted message.
// A trailing error argument is taken as the wrapped cause.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), originalErr, false, false)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err, or any error it wraps, is a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsFatal reports whether an error can neither be retried nor skipped.
// Errors that are not BatchErrors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	return true
}

// ExtractErrorMessage returns the message recorded as an execution failure.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
