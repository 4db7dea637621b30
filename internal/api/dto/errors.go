package dto

import (
	"errors"
	"net/http"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// APIError represents a structured error response.
// All error responses from the API use this format for consistency.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "not_found"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeInternalError     = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodeRunInProgress     = "run_in_progress"
	ErrCodeAlreadyResolved   = "already_resolved"
	ErrCodeInvalidTransition = "invalid_transition"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// ValidationError creates a validation error response.
func ValidationError(message string) APIError {
	return NewAPIError(ErrCodeValidation, message)
}

// FromServiceError maps a service error to an HTTP status and error body.
// resource names the thing that was looked up, for not found messages.
// Unknown errors become a generic 500 so internals are not leaked.
func FromServiceError(err error, resource string) (int, APIError) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, NotFoundError(resource)
	case errors.Is(err, service.ErrRunInProgress):
		return http.StatusConflict, NewAPIError(ErrCodeRunInProgress, err.Error())
	case errors.Is(err, service.ErrAlreadyResolved):
		return http.StatusConflict, NewAPIError(ErrCodeAlreadyResolved, err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict, NewAPIError(ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, BadRequestError(err.Error())
	case errors.Is(err, reconcile.ErrInvalidConfig):
		return http.StatusBadRequest, ValidationError(err.Error())
	default:
		return http.StatusInternalServerError, InternalError()
	}
}
