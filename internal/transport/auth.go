package transport

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/model"
)

// Authenticator checks the bearer token the Medinor backend issued at login.
//
// With a shared secret the signature is verified. Without one the token is
// only decoded and its expiry checked: the backend verifies it again on
// every forwarded call, so the BFF only needs the identity claims.
type Authenticator struct {
	secret  []byte
	methods []string
	leeway  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthenticator reads the secret named by cfg.SecretEnv.
func NewAuthenticator(cfg config.AuthConfig, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{
		methods: cfg.Algorithms,
		leeway:  cfg.ClockSkew,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.SecretEnv != "" {
		if v := os.Getenv(cfg.SecretEnv); v != "" {
			a.secret = []byte(v)
		}
	}
	if len(a.methods) == 0 {
		a.methods = []string{"HS256"}
	}
	if a.secret == nil {
		logger.Warn("auth: no token secret configured, signatures are not verified",
			zap.String("secret_env", cfg.SecretEnv))
	}
	return a
}

// Verifies reports whether token signatures are checked.
func (a *Authenticator) Verifies() bool { return a.secret != nil }

// Parse returns the claims of a valid token.
func (a *Authenticator) Parse(tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if a.secret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, err
		}
		v := jwt.NewValidator(jwt.WithLeeway(a.leeway), jwt.WithTimeFunc(a.now))
		if err := v.Validate(claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods(a.methods),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Middleware rejects requests without a usable bearer token and stores
// the token and its claims in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			WriteError(w, model.NewUnauthorizedError("Missing authorization header"))
			return
		}
		tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || tokenStr == "" {
			WriteError(w, model.NewUnauthorizedError("Invalid authorization header format"))
			return
		}

		claims, err := a.Parse(tokenStr)
		if err != nil {
			a.logger.Debug("auth: token rejected", zap.Error(err))
			if errors.Is(err, jwt.ErrTokenExpired) {
				WriteError(w, model.NewSessionExpiredError())
				return
			}
			WriteError(w, model.NewUnauthorizedError(classifyJWTError(err)))
			return
		}

		ctx := WithToken(WithClaims(r.Context(), map[string]any(claims)), tokenStr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func classifyJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Malformed token"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "Disallowed signing algorithm"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "Token is missing a required claim"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "Token not valid yet"
	default:
		return "Invalid token"
	}
}
