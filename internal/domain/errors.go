// Package domain provides canonical error and caller types for the gateway.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeValidation indicates malformed or missing caller input.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeNotFound indicates an unknown workflow slug.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeAuthentication indicates credentials were presented but rejected.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates an authenticated caller is required.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeRateLimit indicates the caller exceeded its request budget.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeTimeout indicates the automation server did not answer in time.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeTransport indicates the automation server could not be reached.
	ErrorTypeTransport ErrorType = "transport"

	// ErrorTypeRemote indicates the automation server answered with an error status.
	ErrorTypeRemote ErrorType = "remote"

	// ErrorTypeUnavailable indicates a gateway dependency is down.
	ErrorTypeUnavailable ErrorType = "unavailable"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// APIError is the canonical error returned to callers. Only Message and
// Details are ever serialized; everything else stays server-side.
type APIError struct {
	Type ErrorType

	// Message is the human-readable summary written under the "error" key.
	Message string

	// Details is optional structured context written under the "details" key.
	Details json.RawMessage

	// StatusCode overrides the status derived from Type.
	StatusCode int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeTransport, ErrorTypeRemote:
		return http.StatusBadGateway
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MarshalJSON renders the caller-facing error body.
func (e *APIError) MarshalJSON() ([]byte, error) {
	body := struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details,omitempty"`
	}{
		Error:   e.Message,
		Details: e.Details,
	}
	return json.Marshal(body)
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithDetails attaches structured details to the error.
func (e *APIError) WithDetails(details json.RawMessage) *APIError {
	e.Details = details
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *APIError {
	return NewAPIError(ErrorTypeValidation, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message)
}

// ErrPermission creates a permission error.
func ErrPermission(message string) *APIError {
	return NewAPIError(ErrorTypePermission, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message)
}

// ErrUnavailable creates a dependency-unavailable error.
func ErrUnavailable(message string) *APIError {
	return NewAPIError(ErrorTypeUnavailable, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// ToAPIError converts any error to an APIError. Errors that are not already
// APIErrors become a generic server error so internal detail never leaks.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrServer("Internal server error")
}
