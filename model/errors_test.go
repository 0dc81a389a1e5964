package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "client not found"}
	want := "NOT_FOUND: client not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestErrorEnvelope_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewBusyError("fetch"))
	if !errors.Is(err, &ErrorEnvelope{Code: ErrBusy}) {
		t.Error("errors.Is should match wrapped BUSY envelope by code")
	}
	if errors.Is(err, &ErrorEnvelope{Code: ErrNotFound}) {
		t.Error("errors.Is matched a different code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", NewSessionExpiredError())); got != ErrSessionExpired {
		t.Errorf("CodeOf = %q, want %q", got, ErrSessionExpired)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(NewIngestionError("El archivo está vacío")); got != "El archivo está vacío" {
		t.Errorf("MessageOf = %q", got)
	}
	if got := MessageOf(errors.New("boom")); got != "boom" {
		t.Errorf("MessageOf(plain) = %q, want boom", got)
	}
	if got := MessageOf(nil); got != "" {
		t.Errorf("MessageOf(nil) = %q, want empty", got)
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "code", Code: "REQUIRED", Message: "code is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "code" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "code")
	}
}

func TestBackendErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"no response", NewBackendUnavailableError(), ErrBackendUnavailable},
		{"timeout", NewBackendTimeoutError(), ErrBackendTimeout},
		{"response received", NewBackendRejectedError(409, "Código duplicado"), ErrBackendRejected},
		{"request construction", NewClientMisconfiguredError(), ErrClientMisconfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestNewBackendRejectedError_keepsStatus(t *testing.T) {
	e := NewBackendRejectedError(422, "invalid")
	if e.Status != 422 {
		t.Errorf("Status = %d, want 422", e.Status)
	}
}

func TestNewOperationMissingError(t *testing.T) {
	e := NewOperationMissingError("createItem")
	if e.Message != "operation createItem not provided" {
		t.Errorf("Message = %q", e.Message)
	}
}
