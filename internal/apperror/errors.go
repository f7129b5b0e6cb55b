// Package apperror defines the error taxonomy shared by the Gatehouse
// client core and the reference auth API. Errors carry an HTTP status
// code and a message that is safe to show to a person; the underlying
// cause is kept separate and only ever logged.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base type for all domain errors. The Echo error handler
// on the server side and the session store on the client side both map
// these to user-visible behavior by Code.
type AppError struct {
	// Code is the HTTP status code the error corresponds to.
	Code int `json:"-"`

	// Type is a machine-readable classifier (e.g. "invalid_credentials").
	Type string `json:"type"`

	// Message is safe to surface to the user.
	Message string `json:"message"`

	// Internal holds the underlying cause for logging. Never exposed.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthorized",
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewInvalidCredentials creates the 401 returned by the login endpoint
// when the email/password pair does not match. Deliberately does not say
// which half was wrong.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "invalid_credentials",
		Message: "invalid email or password",
	}
}

// NewUnavailable creates a 503 error for transient infrastructure faults.
func NewUnavailable(message string) *AppError {
	return &AppError{
		Code:    http.StatusServiceUnavailable,
		Type:    "unavailable",
		Message: message,
	}
}

// NewInternal creates a 500 Internal Server Error. The cause is kept in
// Internal for logging; the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// IsNotFound reports whether err is (or wraps) a 404 AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}

// SafeMessage returns the client-safe message for an error. Anything that
// is not an AppError gets a generic message so internals never leak.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An unexpected error occurred"
}

// SafeCode returns the HTTP status for an AppError, or 500 otherwise.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
