// Package errors defines the error taxonomy of the licensing subsystem:
// sentinel errors for authoritative negatives, a transient-infrastructure
// marker, and HTTP renderers for chi/render.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors. Authoritative negatives (not found, revoked, expired)
// are expected business outcomes and are normally carried inside result
// values, not returned as errors; the sentinels exist for the places that
// do bubble them up (service plumbing, tests).
var (
	ErrInvalidLicenseFormat = errors.New("invalid license key format")
	ErrLicenseNotFound      = errors.New("license not found")
	ErrLicenseRevoked       = errors.New("license revoked")
	ErrLicenseExpired       = errors.New("license expired")
	ErrMissingField         = errors.New("missing required field")
	ErrInvalidPlan          = errors.New("invalid plan")

	// ErrStoreUnavailable marks transient infrastructure failure. Callers
	// decide fail-open vs fail-closed per path; they must never confuse it
	// with an authoritative negative.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreUnavailable wraps a backend error with the ErrStoreUnavailable
// sentinel so callers can classify it with errors.Is.
func StoreUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// APIError is a structured API error response.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

// NewWithDetails creates an APIError with additional details.
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

// Predefined API errors for common outcomes.
var (
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")
	ErrNotFound         = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrRateLimited      = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
	ErrInternalServer   = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrStoreDown        = New(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Backing store temporarily unavailable")
)

// InvalidRequestWithError creates an invalid request error carrying the
// underlying cause as details.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ValidationError describes a single failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldValidation creates a validation error with field details.
func FieldValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}
