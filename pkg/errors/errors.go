package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeConnection  ErrorType = "connection"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a provider error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// RetryAfter is the provider-imposed wait, set for rate limit errors
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Type == ErrorTypeRateLimit && e.RetryAfter > 0 {
		return fmt.Sprintf("%s error (code %d): %s (retry after %s)", e.Type, e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error
func New(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, cause error, msg string) *Error {
	return &Error{Type: t, Message: fmt.Sprintf("%s: %v", msg, cause), Cause: cause}
}

// RateLimited creates a rate limit error carrying the wait demanded by the provider
func RateLimited(wait time.Duration, code int) *Error {
	return &Error{
		Type:       ErrorTypeRateLimit,
		Message:    "rate limit exceeded",
		Code:       code,
		RetryAfter: wait,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err is not typed
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is a typed error of the given type
func Is(err error, t ErrorType) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == t
}

// RetryAfter extracts the provider-imposed wait from a rate limit error
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Type == ErrorTypeRateLimit {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeConnection:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
