package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockBackend is a configurable stand-in for the Medinor REST API. Routes
// are keyed by the operation names the backend client reports, responses
// are queued per operation, and every request is recorded.
type MockBackend struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.RWMutex
	operations map[string]*operationConfig
	received   map[string][]*RecordedRequest
}

// RecordedRequest captures a request received by the mock backend.
type RecordedRequest struct {
	Method     string
	Path       string
	Query      map[string]string
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

type operationConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// OperationMock configures the responses of one operation.
type OperationMock struct {
	backend *MockBackend
	op      string
}

// backendRoutes maps operation names to the API's method and path.
var backendRoutes = map[string]string{
	"auth.login":              "POST /auth/login",
	"clients.list":            "GET /clients",
	"clients.get":             "GET /clients/{id}",
	"clients.create":          "POST /clients",
	"clients.update":          "PUT /clients/{id}",
	"clients.analyze":         "POST /clients/analyze",
	"clients.make_migration":  "POST /clients/make-migration",
	"products.list":           "GET /products",
	"products.get":            "GET /products/{id}",
	"products.create":         "POST /products",
	"products.update":         "PUT /products/{id}",
	"products.update_batch":   "PUT /products/batch",
	"products.analyze":        "POST /products/analyze",
	"products.make_migration": "POST /products/make-migration",
	"orders.list":             "GET /orders",
	"orders.get":              "GET /orders/{id}",
	"orders.update":           "PUT /orders/{id}",
	"admins.list":             "GET /admins",
	"admins.create":           "POST /admins",
	"admins.update":           "PUT /admins/{id}",
	"images.list":             "GET /products/{id}/images",
	"images.upload":           "POST /products/{id}/images",
	"images.delete":           "DELETE /products/{id}/images/{imageId}",
	"images.set_main":         "PATCH /products/{id}/images/{imageId}/main",
}

func newMockBackend(t *testing.T) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:          t,
		operations: make(map[string]*operationConfig),
		received:   make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for op, pattern := range backendRoutes {
		mux.HandleFunc(pattern, mb.handle(op))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"message": fmt.Sprintf("mock: no route for %s %s", r.Method, r.URL.Path),
		})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)
	return mb
}

// URL returns the base URL of the mock backend.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// On returns a builder for the responses of op.
func (mb *MockBackend) On(op string) *OperationMock {
	if _, ok := backendRoutes[op]; !ok {
		mb.t.Fatalf("mock: unknown backend operation %q", op)
	}
	return &OperationMock{backend: mb, op: op}
}

// RespondWith queues a response with the given status and JSON body.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	om.backend.addResponse(om.op, &mockResponse{status: status, body: body})
	return om
}

// RespondWithError queues an error body in the backend's {"message"} shape.
func (om *OperationMock) RespondWithError(status int, message string) *OperationMock {
	return om.RespondWith(status, map[string]any{"message": message})
}

// RespondWithDelay queues a slow response.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	om.backend.addResponse(om.op, &mockResponse{status: status, body: body, delay: delay})
	return om
}

// RespondWithConnectionError queues a response that drops the connection.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	om.backend.addResponse(om.op, &mockResponse{connError: true})
	return om
}

func (mb *MockBackend) addResponse(op string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.operations[op]
	if !ok {
		cfg = &operationConfig{}
		mb.operations[op] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handle(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			Query:      make(map[string]string),
			Headers:    r.Header.Clone(),
			ReceivedAt: time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.Query[key] = values[0]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			var parsed map[string]any
			if json.Unmarshal(body, &parsed) == nil {
				rec.Body = parsed
			}
		}

		mb.mu.Lock()
		mb.received[op] = append(mb.received[op], rec)
		mb.mu.Unlock()

		resp := mb.next(op)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
			return
		}

		if resp.connError {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, _ := hj.Hijack(); conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

// next returns the queued response for op. The last one repeats.
func (mb *MockBackend) next(op string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.operations[op]
	mb.mu.RUnlock()
	if !ok {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that op was called count times.
func (mb *MockBackend) AssertCalled(t *testing.T, op string, count int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.received[op])
	mb.mu.RUnlock()
	if actual != count {
		t.Errorf("mock: operation %q called %d times, want %d", op, actual, count)
	}
}

// AssertNotCalled verifies that op was never called.
func (mb *MockBackend) AssertNotCalled(t *testing.T, op string) {
	t.Helper()
	mb.AssertCalled(t, op, 0)
}

// LastRequest returns the last request received for op, or nil.
func (mb *MockBackend) LastRequest(op string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.received[op]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Reset clears recorded requests and queued responses.
func (mb *MockBackend) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.operations = make(map[string]*operationConfig)
	mb.received = make(map[string][]*RecordedRequest)
}
