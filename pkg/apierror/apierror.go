// Package apierror provides standardized API error responses.
// All gateway rejections and handler failures flow through these types so
// clients always receive the same JSON shape.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Standard error codes.
const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     Code = "INTERNAL_ERROR"
)

// Error represents a standardized API error.
type Error struct {
	// HTTP status code
	Status int `json:"-"`

	// Machine-readable error code
	Code Code `json:"code"`

	// Human-readable error message
	Message string `json:"message"`

	// Additional error details (optional)
	Details any `json:"details,omitempty"`

	// Internal error (not exposed to client)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the JSON body written to clients.
type Response struct {
	Error     string `json:"error"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes the error as JSON to the response writer.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Response{
		Error:   string(e.Code),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// WriteJSONWithRequestID writes the error as JSON including the request ID.
func (e *Error) WriteJSONWithRequestID(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Response{
		Error:     string(e.Code),
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	})
}

// New creates a new API error.
func New(status int, code Code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with API error context.
func Wrap(err error, status int, code Code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// ValidationFailed creates a 422 error with field details.
func ValidationFailed(message string, details any) *Error {
	return New(http.StatusUnprocessableEntity, CodeValidationFailed, message).WithDetails(details)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, message)
}

// Internal creates a 500 error.
func Internal(message string) *Error {
	return New(http.StatusInternalServerError, CodeInternalError, message)
}

// FromError converts any error to an API error, defaulting to 500.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Wrap(err, http.StatusInternalServerError, CodeInternalError, "Internal error")
}
