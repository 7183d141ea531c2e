// Package errors provides structured error handling with wire codes and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates an illegal lifecycle request (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeIdempotencyReused indicates an idempotency key replayed with a different fingerprint (HTTP 409)
	TypeIdempotencyReused ErrorType = "idempotency_key_reused"
	// TypeGone indicates an expired delivery token (HTTP 410)
	TypeGone ErrorType = "gone"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates camera agent or AI backend failure (HTTP 502)
	TypeExternal ErrorType = "external"
)

// Wire codes surfaced to clients inside error payloads and session errors.
const (
	CodeInvalidState     = "INVALID_STATE"
	CodeNoRetriesLeft    = "NO_RETRIES_LEFT"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeKeyReused        = "IDEMPOTENCY_KEY_REUSED"
	CodeProcessingFailed = "PROCESSING_FAILED"
	CodeTimeout          = "TIMEOUT"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeInternal         = "INTERNAL"
)

// Error represents a structured error with type, wire code, message, and context.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict, TypeIdempotencyReused:
		return http.StatusConflict
	case TypeGone:
		return http.StatusGone
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Code: CodeInvalidInput, Message: message}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Code: CodeNotFound, Message: message}
}

// ConflictError creates a new conflict error (HTTP 409) carrying a wire code
// such as INVALID_STATE or NO_RETRIES_LEFT.
func ConflictError(code, message string) *Error {
	return &Error{Type: TypeConflict, Code: code, Message: message}
}

// KeyReusedError creates the protocol-violation error for an idempotency key
// replayed with a different fingerprint (HTTP 409).
func KeyReusedError() *Error {
	return &Error{Type: TypeIdempotencyReused, Code: CodeKeyReused, Message: "idempotency key reused for a different request"}
}

// GoneError creates an expired-resource error (HTTP 410).
func GoneError(message string) *Error {
	return &Error{Type: TypeGone, Code: CodeTokenExpired, Message: message}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Code: CodeInternal, Message: message, Cause: cause}
}

// ExternalError creates a collaborator-failure error (HTTP 502).
func ExternalError(message string, cause error) *Error {
	return &Error{Type: TypeExternal, Code: CodeProcessingFailed, Message: message, Cause: cause}
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsConflict reports whether err is a structured conflict.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Type == TypeConflict || e.Type == TypeIdempotencyReused)
}

// IsNotFound reports whether err is a structured not-found.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == TypeNotFound
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Code:    e.Code,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
