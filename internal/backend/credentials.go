package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medinor/dashboard/model"
)

// Credentials supplies the bearer token for a backend call. Implementations
// return SESSION_EXPIRED once the token can no longer be used so the caller
// can force a new login before anything goes on the wire.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// TokenExpiry reads the exp claim of a backend-issued JWT without checking
// its signature. A token without exp returns the zero time.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("backend: decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("backend: token exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// TokenCredentials holds a single token, as used by the CLI after a login
// or when a token is passed on the command line.
type TokenCredentials struct {
	now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenCredentials wraps token, which may be empty until Set is called.
func NewTokenCredentials(token string) (*TokenCredentials, error) {
	c := &TokenCredentials{now: time.Now}
	if token == "" {
		return c, nil
	}
	if err := c.Set(token); err != nil {
		return nil, err
	}
	return c, nil
}

// Set replaces the token.
func (c *TokenCredentials) Set(token string) error {
	exp, err := TokenExpiry(token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.expiresAt = token, exp
	return nil
}

// Clear forgets the token.
func (c *TokenCredentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.expiresAt = "", time.Time{}
}

// ExpiresAt returns the expiry of the current token, zero if none.
func (c *TokenCredentials) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

func (c *TokenCredentials) Token(context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", model.NewUnauthorizedError("not signed in")
	}
	if !c.expiresAt.IsZero() && !c.now().Before(c.expiresAt) {
		return "", model.NewSessionExpiredError()
	}
	return c.token, nil
}

// RequestCredentials forwards the token of the dashboard user found in the
// request context, so every BFF call acts as that user.
type RequestCredentials struct {
	Now func() time.Time
}

func (c RequestCredentials) Token(ctx context.Context) (string, error) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil || rctx.Token == "" {
		return "", model.NewUnauthorizedError("not signed in")
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if rctx.Expired(now()) {
		return "", model.NewSessionExpiredError()
	}
	return rctx.Token, nil
}
