package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInvalidTransition  = "INVALID_TRANSITION"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Dashboard-specific error codes.
const (
	ErrIngestionFailed     = "INGESTION_FAILED"
	ErrSessionExpired      = "SESSION_EXPIRED"
	ErrBusy                = "BUSY"
	ErrBackendRejected     = "BACKEND_REJECTED"
	ErrClientMisconfigured = "CLIENT_MISCONFIGURED"
	ErrOperationMissing    = "OPERATION_NOT_PROVIDED"
)

// ErrorEnvelope is the standard error response envelope returned by the BFF.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`

	// Status is the upstream HTTP status when the error came from the
	// Medinor backend. Zero otherwise.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches envelopes by code so callers can write
// errors.Is(err, &ErrorEnvelope{Code: ErrBusy}).
func (e *ErrorEnvelope) Is(target error) bool {
	t, ok := target.(*ErrorEnvelope)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the envelope code carried by err, or "" if err is not an
// *ErrorEnvelope.
func CodeOf(err error) string {
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// MessageOf returns the user-facing message for err. Envelopes expose their
// message verbatim; anything else falls back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error. It is the
// "no response received" branch of backend error classification.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "No response from the server. Check your connection and try again.",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The server did not respond in time",
	}
}

// NewBackendRejectedError wraps a message the backend returned along with
// a non-2xx status.
func NewBackendRejectedError(status int, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBackendRejected, Message: msg, Status: status}
}

// NewClientMisconfiguredError is the "request could not be built" branch
// of backend error classification.
func NewClientMisconfiguredError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrClientMisconfigured,
		Message: "The request could not be prepared. Check the client configuration.",
	}
}

// NewIngestionError returns an INGESTION_FAILED error carrying the message
// shown to the user verbatim.
func NewIngestionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrIngestionFailed, Message: msg}
}

// NewSessionExpiredError signals that the stored credentials are no longer
// usable and the user must log in again.
func NewSessionExpiredError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionExpired,
		Message: "Your session has expired. Please log in again.",
	}
}

// NewBusyError returns a BUSY error for an operation refused because the
// same operation is still in flight.
func NewBusyError(op string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBusy,
		Message: fmt.Sprintf("%s is already in progress", op),
	}
}

// NewOperationMissingError reports a service descriptor without the
// requested operation.
func NewOperationMissingError(op string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrOperationMissing,
		Message: fmt.Sprintf("operation %s not provided", op),
	}
}
