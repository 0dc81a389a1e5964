package integration

import (
	"maps"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// secretEnv is the variable the harness points the auth config at.
const secretEnv = "MEDINOR_IT_JWT_SECRET"

// TestClaims holds the configurable claims for generating test JWT tokens.
type TestClaims struct {
	SubjectID string
	Username  string
	Role      string
	Extra     map[string]any
}

// tokenIssuer signs HS256 tokens the way the Medinor backend does.
type tokenIssuer struct {
	t      *testing.T
	secret []byte
}

// newTokenIssuer creates an issuer and exports its secret for the BFF.
func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	secret := "it-secret-" + t.Name()
	t.Setenv(secretEnv, secret)
	return &tokenIssuer{t: t, secret: []byte(secret)}
}

func (ti *tokenIssuer) claims(c TestClaims, iat, exp time.Time) jwt.MapClaims {
	mc := jwt.MapClaims{
		"iat": jwt.NewNumericDate(iat),
		"exp": jwt.NewNumericDate(exp),
		"sub": c.SubjectID,
	}
	if c.Username != "" {
		mc["username"] = c.Username
	}
	if c.Role != "" {
		mc["role"] = c.Role
	}
	maps.Copy(mc, c.Extra)
	return mc
}

func (ti *tokenIssuer) sign(method jwt.SigningMethod, mc jwt.MapClaims, key []byte) string {
	ti.t.Helper()
	signed, err := jwt.NewWithClaims(method, mc).SignedString(key)
	if err != nil {
		ti.t.Fatalf("sign JWT: %v", err)
	}
	return signed
}

// GenerateToken creates a valid token that expires in an hour.
func (ti *tokenIssuer) GenerateToken(c TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.claims(c, now, now.Add(time.Hour)), ti.secret)
}

// GenerateExpiredToken creates a token that expired an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(c TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.claims(c, now.Add(-2*time.Hour), now.Add(-time.Hour)), ti.secret)
}

// GenerateForeignToken creates an otherwise valid token signed with a key
// the BFF does not know.
func (ti *tokenIssuer) GenerateForeignToken(c TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.claims(c, now, now.Add(time.Hour)), []byte("someone-else"))
}
