package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576, 10485760}
)

// Metrics holds all Prometheus metric instruments for the dashboard BFF.
// Every recording helper is safe to call on a nil *Metrics so components
// can run without instrumentation in tests and in the CLI.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Ingestion metrics
	IngestRowsTotal    *prometheus.CounterVec
	IngestRecordsTotal *prometheus.CounterVec
	IngestDroppedTotal *prometheus.CounterVec
	IngestFailures     *prometheus.CounterVec

	// Migration session metrics
	MigrationTransitionsTotal *prometheus.CounterVec
	MigrationActiveSessions   prometheus.Gauge
	MigrationCreatedTotal     *prometheus.CounterVec

	// List cache metrics
	ListFetchesTotal   *prometheus.CounterVec
	ListStaleDiscarded *prometheus.CounterVec
	ListCachesActive   prometheus.Gauge

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        *prometheus.CounterVec

	// System metrics
	NavigationReloadTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medinor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medinor_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medinor_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Ingestion
		IngestRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_ingest_rows_total",
			Help: "Spreadsheet data rows read.",
		}, []string{"entity", "format"}),
		IngestRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_ingest_records_total",
			Help: "Normalized records produced by ingestion.",
		}, []string{"entity"}),
		IngestDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_ingest_dropped_rows_total",
			Help: "Rows dropped during ingestion.",
		}, []string{"entity", "reason"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_ingest_failures_total",
			Help: "Ingestions that failed with a user-facing error.",
		}, []string{"entity"}),

		// Migrations
		MigrationTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_migration_transitions_total",
			Help: "Migration session transitions by outcome.",
		}, []string{"entity", "transition", "outcome"}),
		MigrationActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medinor_migration_active_sessions",
			Help: "Migration sessions held in memory.",
		}),
		MigrationCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_migration_created_records_total",
			Help: "Records created by committed migrations.",
		}, []string{"entity"}),

		// Lists
		ListFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_list_fetches_total",
			Help: "List cache fetches by outcome.",
		}, []string{"entity", "outcome"}),
		ListStaleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_list_stale_responses_total",
			Help: "List responses discarded because a newer query superseded them.",
		}, []string{"entity"}),
		ListCachesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medinor_list_caches_active",
			Help: "Per-screen list caches currently held.",
		}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_backend_requests_total",
			Help: "Total number of Medinor backend requests.",
		}, []string{"operation", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medinor_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"operation"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medinor_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_backend_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"operation"}),

		// System
		NavigationReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medinor_navigation_reload_total",
			Help: "Navigation definition loads by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.IngestRowsTotal,
		m.IngestRecordsTotal,
		m.IngestDroppedTotal,
		m.IngestFailures,
		m.MigrationTransitionsTotal,
		m.MigrationActiveSessions,
		m.MigrationCreatedTotal,
		m.ListFetchesTotal,
		m.ListStaleDiscarded,
		m.ListCachesActive,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		m.NavigationReloadTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordIngest records the outcome of one successful ingestion.
func (m *Metrics) RecordIngest(entity, format string, rows, records int, dropped map[string]int) {
	if m == nil {
		return
	}
	m.IngestRowsTotal.WithLabelValues(entity, format).Add(float64(rows))
	m.IngestRecordsTotal.WithLabelValues(entity).Add(float64(records))
	for reason, n := range dropped {
		m.IngestDroppedTotal.WithLabelValues(entity, reason).Add(float64(n))
	}
}

// RecordIngestFailure records an ingestion that ended in a user-facing error.
func (m *Metrics) RecordIngestFailure(entity string) {
	if m == nil {
		return
	}
	m.IngestFailures.WithLabelValues(entity).Inc()
}

// RecordMigrationTransition records a migration session transition.
// Outcome is "ok", "error" or "busy".
func (m *Metrics) RecordMigrationTransition(entity, transition, outcome string) {
	if m == nil {
		return
	}
	m.MigrationTransitionsTotal.WithLabelValues(entity, transition, outcome).Inc()
}

// RecordMigrationCreated records records created by a committed migration.
func (m *Metrics) RecordMigrationCreated(entity string, count int) {
	if m == nil {
		return
	}
	m.MigrationCreatedTotal.WithLabelValues(entity).Add(float64(count))
}

// SetMigrationActiveSessions sets the number of live migration sessions.
func (m *Metrics) SetMigrationActiveSessions(n int) {
	if m == nil {
		return
	}
	m.MigrationActiveSessions.Set(float64(n))
}

// RecordListFetch records a list cache fetch. Outcome is "ok", "error",
// "cancelled" or "stale".
func (m *Metrics) RecordListFetch(entity, outcome string) {
	if m == nil {
		return
	}
	m.ListFetchesTotal.WithLabelValues(entity, outcome).Inc()
	if outcome == "stale" {
		m.ListStaleDiscarded.WithLabelValues(entity).Inc()
	}
}

// SetListCachesActive sets the number of held list caches.
func (m *Metrics) SetListCachesActive(n int) {
	if m == nil {
		return
	}
	m.ListCachesActive.Set(float64(n))
}

// RecordBackendRequest records a backend request. Status 0 means no
// response was received.
func (m *Metrics) RecordBackendRequest(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry(operation string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordNavigationReload records a navigation definition load.
func (m *Metrics) RecordNavigationReload(status string) {
	if m == nil {
		return
	}
	m.NavigationReloadTotal.WithLabelValues(status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
