package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RequestContext carries the identity of the dashboard user for the lifetime
// of an authenticated request. The bearer token is the one issued by the
// Medinor backend and is forwarded verbatim on every backend call.
// It is immutable after construction and safe for concurrent reads.
type RequestContext struct {
	SubjectID     string
	Username      string
	Role          string
	Token         string
	ExpiresAt     time.Time
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Validate checks that all mandatory fields are present.
// SubjectID and Token must be non-empty.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required"))
	}
	if rc.Token == "" {
		errs = append(errs, fmt.Errorf("Token is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Expired reports whether the token expiry has passed at now. A zero
// ExpiresAt never expires.
func (rc *RequestContext) Expired(now time.Time) bool {
	return !rc.ExpiresAt.IsZero() && !now.Before(rc.ExpiresAt)
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking if
// it is not present. Only call it behind the authentication middleware.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
