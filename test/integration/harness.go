// Package integration provides a reusable test harness for end-to-end
// integration testing of the Medinor dashboard BFF. It starts the full HTTP
// server against a mock Medinor backend, with real backend client, session
// store, list registry and navigation provider.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medinor/dashboard/internal/backend"
	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/internal/migration"
	"github.com/medinor/dashboard/internal/navigation"
	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/internal/transport"
	"github.com/medinor/dashboard/model"
)

// TestHarness encapsulates a fully wired BFF instance with a mock backend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Components exposed for advanced scenarios.
	Backend    *MockBackend
	Client     *backend.Client
	Migrations *migration.Manager
	Lists      *crud.Registry
	Navigation *navigation.Provider
	Metrics    *observability.Metrics
	Registry   *prometheus.Registry

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	store           migration.Store
	navigationFile  string
	handlerTimeout  time.Duration
	backendTimeout  time.Duration
	breakerFailures int
	breakerCoolDown time.Duration
	retryAttempts   int
	maxUploadBytes  int64
	sessionTTL      time.Duration
}

// WithSessionStore replaces the in-memory migration session store.
func WithSessionStore(s migration.Store) HarnessOption {
	return func(c *harnessConfig) { c.store = s }
}

// WithNavigationFile loads the navigation tree from path instead of the
// built-in one.
func WithNavigationFile(path string) HarnessOption {
	return func(c *harnessConfig) { c.navigationFile = path }
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.handlerTimeout = d }
}

// WithBackendTimeout sets the backend client timeout.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.backendTimeout = d }
}

// WithBreaker sets the failures that open the circuit breaker and how long
// it stays open.
func WithBreaker(failures int, coolDown time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.breakerFailures = failures
		c.breakerCoolDown = coolDown
	}
}

// WithRetries sets the attempts made for idempotent backend calls.
func WithRetries(attempts int) HarnessOption {
	return func(c *harnessConfig) { c.retryAttempts = attempts }
}

// WithMaxUploadBytes bounds uploaded files.
func WithMaxUploadBytes(n int64) HarnessOption {
	return func(c *harnessConfig) { c.maxUploadBytes = n }
}

// NewTestHarness creates and starts a full BFF test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout:  10 * time.Second,
		backendTimeout:  5 * time.Second,
		breakerFailures: 50,
		breakerCoolDown: time.Minute,
		retryAttempts:   1,
		maxUploadBytes:  1 << 20,
		sessionTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{
		t:       t,
		issuer:  newTokenIssuer(t),
		Backend: newMockBackend(t),
	}

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS = config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
		MaxAge:         600,
	}
	cfg.Backend.BaseURL = h.Backend.URL()
	cfg.Backend.Timeout = hc.backendTimeout
	cfg.Backend.UploadTimeout = hc.backendTimeout
	cfg.Backend.CircuitBreaker = config.CircuitBreakerConfig{
		FailureThreshold: hc.breakerFailures,
		SuccessThreshold: 1,
		Timeout:          hc.breakerCoolDown,
	}
	cfg.Backend.Retry = config.RetryConfig{
		MaxAttempts:    hc.retryAttempts,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
	cfg.Auth.SecretEnv = secretEnv
	cfg.Ingest.MaxUploadBytes = hc.maxUploadBytes
	cfg.Navigation.File = hc.navigationFile
	if err := cfg.Validate(); err != nil {
		t.Fatalf("harness config: %v", err)
	}
	h.cfg = cfg

	h.Registry = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Registry)

	client, err := backend.New(cfg.Backend, backend.RequestCredentials{}, backend.WithMetrics(h.Metrics))
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}
	h.Client = client

	h.Navigation, err = navigation.NewProvider(cfg.Navigation.File, nil, h.Metrics)
	if err != nil {
		t.Fatalf("navigation: %v", err)
	}

	store := hc.store
	if store == nil {
		store = migration.NewMemoryStore()
	}
	h.Migrations = migration.NewManager(store, hc.sessionTTL, migration.Deps{
		Backend: client,
		Metrics: h.Metrics,
	})

	h.Lists = crud.NewRegistry(cfg.Lists.IdleTTL, nil, h.Metrics)
	client.RegisterLists(h.Lists, crud.Options{
		DefaultLimit: cfg.Lists.DefaultLimit,
		MaxLimit:     cfg.Lists.MaxLimit,
		Validator:    crud.NewValidator(),
		Metrics:      h.Metrics,
	})

	router := transport.NewRouter(transport.Dependencies{
		Config:     cfg,
		Metrics:    h.Metrics,
		Gatherer:   h.Registry,
		Backend:    client,
		Migrations: h.Migrations,
		Lists:      h.Lists,
		Navigation: h.Navigation,
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT for claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GenerateForeignToken creates a JWT signed with an unknown key.
func (h *TestHarness) GenerateForeignToken(claims TestClaims) string {
	return h.issuer.GenerateForeignToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPost, path, body, token, nil)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPut, path, body, token, nil)
}

// PATCH performs an authenticated PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPatch, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodDelete, path, nil, token, nil)
}

// Upload posts content as multipart field to path.
func (h *TestHarness) Upload(method, path, field, fileName, content, token string) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, fileName)
	if err != nil {
		h.t.Fatalf("multipart: %v", err)
	}
	io.WriteString(part, content)
	mw.Close()
	return h.Do(method, path, &buf, token, map[string]string{"Content-Type": mw.FormDataContentType()})
}

// Do sends a request. A body that is an io.Reader is sent as is; anything
// else is JSON-encoded.
func (h *TestHarness) Do(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	jsonBody := false
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
		jsonBody = true
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	data := h.ReadBody(resp)
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks the status code and closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks the status and parses the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertError checks the status and the error code of an error response.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, status int, code string) model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
	return body.Error
}

// --- Default test claims ---

// SuperadminClaims returns claims for the owner account.
func SuperadminClaims() TestClaims {
	return TestClaims{SubjectID: "u-root", Username: "root", Role: model.RoleSuperAdmin}
}

// AdminClaims returns claims for an office administrator.
func AdminClaims() TestClaims {
	return TestClaims{SubjectID: "u-admin", Username: "marta", Role: model.RoleAdmin}
}

// SellerClaims returns claims for a field seller.
func SellerClaims() TestClaims {
	return TestClaims{SubjectID: "u-seller", Username: "pablo", Role: model.RoleSeller}
}

// --- Fixtures ---

// ClientFixture returns a client as the backend lists it.
func ClientFixture(id, code, name string) map[string]any {
	return map[string]any{
		"_id":        id,
		"COD_CLIENT": code,
		"RAZON_SOCI": name,
		"IDENTIFTRI": "30-" + code,
	}
}

// ProductFixture returns a product as the backend lists it.
func ProductFixture(id, code string, price float64) map[string]any {
	return map[string]any{
		"_id":           id,
		"code":          code,
		"lab":           "Bayer",
		"desc":          "Producto " + code,
		"iva":           true,
		"medinor_price": price,
		"public_price":  price * 1.5,
		"price":         price,
		"notes":         nil,
		"extra_desc":    nil,
		"imageUrl":      nil,
	}
}

// PageFixture wraps items in the backend's paginated envelope.
func PageFixture(items []map[string]any, page, total, pages int) map[string]any {
	return map[string]any{
		"items":      items,
		"page":       page,
		"totalItems": total,
		"totalPages": pages,
	}
}

// ClientsCSV is a client master export with the given data rows.
func ClientsCSV(rows ...string) string {
	return "COD_CLIENT,RAZON_SOCI,IDENTIFTRI,LEVEL\n" + strings.Join(rows, "\n") + "\n"
}

// ProductsCSV is a product catalog export with the given data rows.
func ProductsCSV(rows ...string) string {
	return "Código,Laboratorio,Descripción,Rubro,Observaciones,Desc. Adicional,Cod. IVA,Pr. Medinor,Pr. Público,Precio\n" +
		strings.Join(rows, "\n") + "\n"
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
