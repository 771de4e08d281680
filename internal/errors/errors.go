// Package errors provides error code definitions shared across the sync core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a failure class. Codes are stable strings so they can
// cross the UI boundary unchanged.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors. Failing to durably record a user intent is a
	// correctness violation, so these always propagate to the caller.
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Network / gateway errors
	ErrNetworkUnavailable ErrorCode = "NETWORK_UNAVAILABLE"
	ErrAuthExpired        ErrorCode = "AUTH_EXPIRED"
	ErrServer             ErrorCode = "SERVER_ERROR"

	// Sync errors
	ErrSyncFailed   ErrorCode = "SYNC_FAILED"
	ErrQueueDrain   ErrorCode = "QUEUE_DRAIN_FAILED"
	ErrPoisonAction ErrorCode = "POISON_ACTION"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the error code from err, or ErrInternal if err carries none.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Retryable reports whether the failure is transient and worth queueing for
// later replay. Validation and auth failures are permanent from the client's
// point of view: resubmitting the same data cannot succeed.
func Retryable(err error) bool {
	switch Code(err) {
	case ErrNetworkUnavailable, ErrServer:
		return true
	default:
		return false
	}
}
