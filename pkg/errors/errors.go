package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates a non-retryable error from an external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeTransient indicates a dependency failure that may succeed on retry
	ErrorTypeTransient ErrorType = "TRANSIENT"

	// ErrorTypeUnavailable indicates a dependency is short-circuited by a breaker
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// ErrorTypeRateLimited indicates a local rate limiter refused the call before it reached the dependency
	ErrorTypeRateLimited ErrorType = "RATE_LIMITED"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewTransientError creates an error that retry and breaker logic treat as retryable
func NewTransientError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTransient,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitedError wraps a client-side limiter refusal. It is never
// transient, so it neither retries nor counts toward a breaker.
func NewRateLimitedError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeRateLimited,
		Message: message,
		Err:     err,
	}
}

// FromHTTPStatus classifies a failed dependency response. Request timeouts,
// throttling and server errors are transient; other statuses are not.
func FromHTTPStatus(service string, status int, err error) *AppError {
	msg := fmt.Sprintf("%s request failed with status %d", service, status)
	if status == 408 || status == 425 || status == 429 || status >= 500 {
		return NewTransientError(msg, err)
	}
	return NewExternalError(msg, err)
}

// BreakerOpenError is returned without invoking the protected call while a breaker rejects traffic.
type BreakerOpenError struct {
	AppError
	Operation  string
	RetryAfter time.Duration
}

// NewBreakerOpenError creates a breaker rejection for the named operation.
func NewBreakerOpenError(operation string, retryAfter time.Duration) *BreakerOpenError {
	return &BreakerOpenError{
		AppError: AppError{
			Type:    ErrorTypeUnavailable,
			Message: fmt.Sprintf("circuit open for %s", operation),
		},
		Operation:  operation,
		RetryAfter: retryAfter,
	}
}

// TypeOf returns the AppError type found in err's chain, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var bo *BreakerOpenError
	if stderrors.As(err, &bo) {
		return bo.Type
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Is reports whether err carries the given type.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsBreakerOpen reports whether err is a breaker rejection.
func IsBreakerOpen(err error) bool {
	var bo *BreakerOpenError
	return stderrors.As(err, &bo)
}

// IsTransient classifies err as retryable. Timeouts, network errors and
// explicitly transient AppErrors qualify; caller cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if IsBreakerOpen(err) {
		return false
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if appErr.Type == ErrorTypeTransient {
			return true
		}
		if appErr.Err == nil {
			return false
		}
		if appErr.Type != ErrorTypeInternal && appErr.Type != ErrorTypeExternal {
			return false
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	return false
}
