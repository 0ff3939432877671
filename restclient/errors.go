package restclient

import (
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/kbukum/restkit/errors"
)

// ErrorCode classifies client errors.
type ErrorCode string

const (
	// ErrCodeTimeout indicates a request or connection timeout.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeConnection indicates a connection failure (refused, DNS, etc).
	ErrCodeConnection ErrorCode = "connection"
	// ErrCodeAuth indicates an authentication or authorization failure (401/403).
	ErrCodeAuth ErrorCode = "auth"
	// ErrCodeNotFound indicates the resource was not found (404).
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeRateLimit indicates rate limiting (429).
	ErrCodeRateLimit ErrorCode = "rate_limit"
	// ErrCodeValidation indicates a client-side validation error (400).
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeServer indicates a server-side error (5xx).
	ErrCodeServer ErrorCode = "server"
	// ErrCodeClosed indicates the client has been closed.
	ErrCodeClosed ErrorCode = "closed"
)

// Error is a structured client error with classification.
type Error struct {
	// StatusCode is the HTTP status code (0 for connection-level errors).
	StatusCode int
	// Code classifies the error.
	Code ErrorCode
	// Message describes the error.
	Message string
	// Retryable indicates whether the operation can be retried.
	Retryable bool
	// Body is the original response body (may be nil).
	Body []byte
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("restclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("restclient: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError creates a connection error.
func NewConnectionError(err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: err.Error(), Retryable: true, Err: err}
}

// NewValidationError creates a validation error.
func NewValidationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg, Retryable: false}
}

// NewClosedError reports use of a closed client.
func NewClosedError() *Error {
	return &Error{Code: ErrCodeClosed, Message: "client is closed", Retryable: false}
}

// ClassifyStatusCode converts an HTTP status code into a typed error.
// Returns nil for 2xx status codes. When the body carries a structured
// error envelope its message replaces the generic one.
func ClassifyStatusCode(statusCode int, body []byte) *Error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	e := &Error{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d", statusCode),
		Body:       body,
	}
	if len(body) > 0 {
		var envelope apperrors.ErrorResponse
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			e.Message = envelope.Error.Message
		}
	}
	switch {
	case statusCode == 401 || statusCode == 403:
		e.Code = ErrCodeAuth
	case statusCode == 404:
		e.Code = ErrCodeNotFound
	case statusCode == 429:
		e.Code = ErrCodeRateLimit
		e.Retryable = true
	case statusCode >= 400 && statusCode < 500:
		e.Code = ErrCodeValidation
	case statusCode >= 500:
		e.Code = ErrCodeServer
		e.Retryable = true
	default:
		e.Code = ErrCodeServer
	}
	return e
}

func isCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool { return isCode(err, ErrCodeConnection) }

// IsAuth checks if an error is an authentication error.
func IsAuth(err error) bool { return isCode(err, ErrCodeAuth) }

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsRateLimit checks if an error is a rate-limit error.
func IsRateLimit(err error) bool { return isCode(err, ErrCodeRateLimit) }

// IsServerError checks if an error is a server error.
func IsServerError(err error) bool { return isCode(err, ErrCodeServer) }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
