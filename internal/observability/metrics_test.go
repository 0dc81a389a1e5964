package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return InitMetrics(reg), reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	// Vectors only appear in Gather once a series exists.
	m.RecordHTTPRequest("GET", "/api/health", 200, time.Millisecond, 0, 10)
	m.RecordIngest("clients", "csv", 3, 2, map[string]int{"duplicate": 1})
	m.RecordIngestFailure("products")
	m.RecordMigrationTransition("clients", "process", "ok")
	m.RecordMigrationCreated("clients", 2)
	m.SetMigrationActiveSessions(1)
	m.RecordListFetch("orders", "stale")
	m.SetListCachesActive(4)
	m.RecordBackendRequest("clients.analyze", 200, time.Millisecond)
	m.SetBackendCircuitBreakerState(0)
	m.RecordBackendRetry("clients.list")
	m.RecordNavigationReload("success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"medinor_http_requests_total",
		"medinor_http_request_duration_seconds",
		"medinor_http_request_size_bytes",
		"medinor_http_response_size_bytes",
		"medinor_ingest_rows_total",
		"medinor_ingest_records_total",
		"medinor_ingest_dropped_rows_total",
		"medinor_ingest_failures_total",
		"medinor_migration_transitions_total",
		"medinor_migration_active_sessions",
		"medinor_migration_created_records_total",
		"medinor_list_fetches_total",
		"medinor_list_stale_responses_total",
		"medinor_list_caches_active",
		"medinor_backend_requests_total",
		"medinor_backend_request_duration_seconds",
		"medinor_backend_circuit_breaker_state",
		"medinor_backend_retries_total",
		"medinor_navigation_reload_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestMetrics_nilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordIngest("clients", "csv", 1, 1, nil)
	m.RecordMigrationTransition("clients", "process", "ok")
	m.RecordListFetch("orders", "ok")
	m.RecordBackendRequest("x", 200, time.Millisecond)
	m.SetBackendCircuitBreakerState(2)
}

func TestRecordIngest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordIngest("products", "xlsx", 10, 7, map[string]int{"missing_required": 2, "duplicate": 1})

	if got := testutil.ToFloat64(m.IngestRowsTotal.WithLabelValues("products", "xlsx")); got != 10 {
		t.Errorf("rows = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.IngestRecordsTotal.WithLabelValues("products")); got != 7 {
		t.Errorf("records = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.IngestDroppedTotal.WithLabelValues("products", "missing_required")); got != 2 {
		t.Errorf("dropped missing_required = %v, want 2", got)
	}
}

func TestRecordListFetch_staleAlsoCountsDiscard(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordListFetch("clients", "ok")
	m.RecordListFetch("clients", "stale")

	if got := testutil.ToFloat64(m.ListFetchesTotal.WithLabelValues("clients", "ok")); got != 1 {
		t.Errorf("ok fetches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ListStaleDiscarded.WithLabelValues("clients")); got != 1 {
		t.Errorf("stale discarded = %v, want 1", got)
	}
}

func TestSetBackendCircuitBreakerState(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetBackendCircuitBreakerState(2)
	if got := testutil.ToFloat64(m.BackendCircuitBreakerState); got != 2 {
		t.Errorf("circuit breaker state = %v, want 2 (open)", got)
	}
	m.SetBackendCircuitBreakerState(0)
	if got := testutil.ToFloat64(m.BackendCircuitBreakerState); got != 0 {
		t.Errorf("circuit breaker state = %v, want 0 (closed)", got)
	}
}

func TestMetricsMiddleware_usesRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/api/migrations/{sessionId}/process", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/migrations/abc/process", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/migrations/{sessionId}/process", "409"))
	if got != 1 {
		t.Errorf("requests total = %v, want 1", got)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw/path", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200")); got != 1 {
		t.Errorf("raw path requests = %v, want 1", got)
	}
	if testutil.CollectAndCount(m.HTTPResponseSizeBytes) == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestHandler_servesRegistry(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordNavigationReload("success")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "medinor_navigation_reload_total") {
		t.Error("metrics response should contain registered metrics")
	}
}
