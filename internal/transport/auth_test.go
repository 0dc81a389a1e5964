package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/model"
)

const (
	testSecretEnv = "MEDINOR_TEST_JWT_SECRET"
	testSecret    = "s3cret-for-tests"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      "u-1",
		"username": "ana",
		"role":     model.RoleAdmin,
		"exp":      jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat":      jwt.NewNumericDate(time.Now()),
	}
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		SecretEnv:  testSecretEnv,
		Algorithms: []string{"HS256"},
		ClockSkew:  30 * time.Second,
		RoleClaim:  "role",
		UserClaim:  "username",
	}
}

// echoClaims writes the claims and token the middleware stored.
func echoClaims(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"claims": ClaimsFrom(r.Context()),
		"token":  TokenFrom(r.Context()),
	})
}

func authRequest(t *testing.T, a *Authenticator, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/navigation", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(echoClaims)).ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error.Code, resp.Error.Message
}

func TestAuthenticator_verifiedTokens(t *testing.T) {
	t.Setenv(testSecretEnv, testSecret)
	a := NewAuthenticator(testAuthConfig(), nil)
	if !a.Verifies() {
		t.Fatal("expected signature verification with a configured secret")
	}

	expired := validClaims()
	expired["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	withinSkew := validClaims()
	withinSkew["exp"] = jwt.NewNumericDate(time.Now().Add(-10 * time.Second))
	noExp := validClaims()
	delete(noExp, "exp")

	tests := []struct {
		name    string
		header  string
		status  int
		code    string
		message string
	}{
		{"valid", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, validClaims()), 200, "", ""},
		{"within clock skew", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, withinSkew), 200, "", ""},
		{"missing header", "", 401, model.ErrUnauthorized, "Missing authorization header"},
		{"basic scheme", "Basic YWRtaW46YWRtaW4=", 401, model.ErrUnauthorized, "Invalid authorization header format"},
		{"empty bearer", "Bearer ", 401, model.ErrUnauthorized, "Invalid authorization header format"},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, validClaims()), 401, model.ErrUnauthorized, "Invalid token signature"},
		{"disallowed algorithm", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS384, validClaims()), 401, model.ErrUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, expired), 401, model.ErrSessionExpired, ""},
		{"no exp", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, noExp), 401, model.ErrUnauthorized, "Token is missing a required claim"},
		{"garbage", "Bearer not.a.jwt", 401, model.ErrUnauthorized, "Malformed token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := authRequest(t, a, tc.header)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body.String())
			}
			if tc.status == 200 {
				return
			}
			code, msg := errorCode(t, w)
			if code != tc.code {
				t.Errorf("code = %q, want %q", code, tc.code)
			}
			if tc.message != "" && msg != tc.message {
				t.Errorf("message = %q, want %q", msg, tc.message)
			}
		})
	}
}

func TestAuthenticator_storesClaimsAndToken(t *testing.T) {
	t.Setenv(testSecretEnv, testSecret)
	a := NewAuthenticator(testAuthConfig(), nil)
	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	w := authRequest(t, a, "Bearer "+token)

	var body struct {
		Claims map[string]any `json:"claims"`
		Token  string         `json:"token"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if body.Token != token {
		t.Errorf("token not stored in context")
	}
	if body.Claims["role"] != model.RoleAdmin {
		t.Errorf("role claim = %v", body.Claims["role"])
	}
}

func TestAuthenticator_unverifiedChecksExpiryOnly(t *testing.T) {
	cfg := testAuthConfig()
	cfg.SecretEnv = "MEDINOR_TEST_UNSET_SECRET"
	a := NewAuthenticator(cfg, nil)
	if a.Verifies() {
		t.Fatal("expected decode-only mode without a secret")
	}

	w := authRequest(t, a, "Bearer "+signToken(t, "any-key", jwt.SigningMethodHS512, validClaims()))
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	expired := validClaims()
	expired["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	w = authRequest(t, a, "Bearer "+signToken(t, "any-key", jwt.SigningMethodHS256, expired))
	if code, _ := errorCode(t, w); code != model.ErrSessionExpired {
		t.Errorf("code = %q, want SESSION_EXPIRED", code)
	}

	w = authRequest(t, a, "Bearer garbage")
	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticator_clock(t *testing.T) {
	t.Setenv(testSecretEnv, testSecret)
	a := NewAuthenticator(testAuthConfig(), nil)
	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	w := authRequest(t, a, "Bearer "+token)
	if code, _ := errorCode(t, w); code != model.ErrSessionExpired {
		t.Errorf("code = %q, want SESSION_EXPIRED", code)
	}
}

func TestBuildRequestContext(t *testing.T) {
	exp := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		claims  map[string]any
		status  int
		subject string
		role    string
	}{
		{"sub claim", map[string]any{"sub": "u-1", "username": "ana", "role": "admin", "exp": float64(exp.Unix())}, 200, "u-1", "admin"},
		{"numeric id claim", map[string]any{"id": float64(42), "role": "seller"}, 200, "42", "seller"},
		{"username only", map[string]any{"username": "ana"}, 200, "ana", ""},
		{"no subject", map[string]any{"role": "admin"}, 401, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got *model.RequestContext
			h := BuildRequestContext(testAuthConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = model.RequestContextFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			ctx := WithToken(WithClaims(req.Context(), tc.claims), "tok")
			w := httptest.NewRecorder()
			RequestID(h).ServeHTTP(w, req.WithContext(ctx))

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.status != 200 {
				return
			}
			if got.SubjectID != tc.subject || got.Role != tc.role {
				t.Errorf("subject/role = %q/%q, want %q/%q", got.SubjectID, got.Role, tc.subject, tc.role)
			}
			if got.Token != "tok" {
				t.Errorf("Token = %q", got.Token)
			}
			if got.CorrelationID == "" {
				t.Error("CorrelationID not set")
			}
			if tc.name == "sub claim" && !got.ExpiresAt.Equal(exp) {
				t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
			}
		})
	}
}
