package errors

import (
	"errors"
	"net/http"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

func Unavailable(code, message string) *APIError {
	err := New(http.StatusServiceUnavailable, code, message)
	err.Details = map[string]interface{}{"retryable": true}
	return err
}

// FromError maps a domain error to its API form. fallback is used as the message of
// unclassified errors so driver details never reach the client.
func FromError(err error, fallback string) *APIError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput):
		return BadRequest("invalid_input", err.Error())
	case errors.Is(err, ErrNotFound):
		return NotFound("not_found", "resource not found")
	case errors.Is(err, ErrInvalidTransition):
		return Conflict("invalid_transition", "session is not in a state that allows this operation", nil)
	case errors.Is(err, ErrOperationInFlight):
		return Conflict("operation_in_flight", "another session operation is still running", nil)
	case errors.Is(err, ErrConflict):
		return Conflict("session_conflict", "an open session already exists", nil)
	case errors.Is(err, ErrStoreUnavailable):
		return Unavailable("store_unavailable", "session store is unavailable, please retry")
	default:
		return Internal(fallback)
	}
}
