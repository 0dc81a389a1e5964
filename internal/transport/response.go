// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the dashboard BFF API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medinor/dashboard/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:          http.StatusBadRequest,
	model.ErrUnauthorized:        http.StatusUnauthorized,
	model.ErrForbidden:           http.StatusForbidden,
	model.ErrNotFound:            http.StatusNotFound,
	model.ErrConflict:            http.StatusConflict,
	model.ErrValidationError:     http.StatusUnprocessableEntity,
	model.ErrInvalidTransition:   http.StatusUnprocessableEntity,
	model.ErrInternalError:       http.StatusInternalServerError,
	model.ErrBackendUnavailable:  http.StatusBadGateway,
	model.ErrBackendTimeout:      http.StatusGatewayTimeout,
	model.ErrIngestionFailed:     http.StatusUnprocessableEntity,
	model.ErrSessionExpired:      http.StatusUnauthorized,
	model.ErrBusy:                http.StatusConflict,
	model.ErrBackendRejected:     http.StatusBadGateway,
	model.ErrClientMisconfigured: http.StatusInternalServerError,
	model.ErrOperationMissing:    http.StatusNotImplemented,
}

// statusFor picks the response status for ee. A backend rejection keeps
// the backend's own 4xx status so the frontend sees the same class of
// error it would have seen calling the backend directly.
func statusFor(ee *model.ErrorEnvelope) int {
	if ee.Code == model.ErrBackendRejected && ee.Status >= 400 && ee.Status < 500 {
		return ee.Status
	}
	if status := statusForCode[ee.Code]; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. Errors that do not wrap an *ErrorEnvelope become a
// generic 500.
func WriteError(w http.ResponseWriter, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, statusFor(ee), errorResponse{Error: ee})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}
