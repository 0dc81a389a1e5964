// Package backend is the HTTP client for the Medinor REST API: credentials,
// retry and circuit breaking, error classification, and typed wrappers for
// the auth, entity, migration and image endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

const maxResponseBytes = 10 << 20

// Client calls the Medinor backend. It is safe for concurrent use.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	uploadTimeout time.Duration
	retry         config.RetryConfig
	breaker       *Breaker
	creds         Credentials
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records backend request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for cfg.BaseURL. creds supplies the bearer token for
// every call except login.
func New(cfg config.BackendConfig, creds Credentials, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		uploadTimeout: cfg.UploadTimeout,
		retry:         cfg.Retry,
		creds:         creds,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	cb := cfg.CircuitBreaker
	c.breaker = NewBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout, func(s BreakerState) {
		c.metrics.SetBackendCircuitBreakerState(float64(s))
		c.logger.Warn("backend: circuit breaker state changed", zap.Stringer("state", s))
	})
	return c, nil
}

// HealthCheck fails while the circuit breaker is open.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// call describes one backend request.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	// body is JSON-encoded unless raw is set.
	body        any
	raw         []byte
	contentType string
	anonymous   bool
	upload      bool
}

// do runs c and decodes a JSON response into out when out is non-nil.
//
// Errors follow three classes. A response with a non-2xx status becomes
// BACKEND_REJECTED with the server's own message. No response at all
// becomes BACKEND_UNAVAILABLE (or BACKEND_TIMEOUT). A request that could
// not be built becomes CLIENT_MISCONFIGURED.
func (c *Client) do(ctx context.Context, cl call, out any) (err error) {
	ctx, span := observability.StartSpan(ctx, "backend."+cl.op, observability.AttrOperation.String(cl.op))
	defer func() { observability.EndSpanWithError(span, err) }()

	logger := observability.LoggerFrom(ctx, c.logger).With(zap.String("operation", cl.op))

	var token string
	if !cl.anonymous {
		if token, err = c.creds.Token(ctx); err != nil {
			return err
		}
	}

	payload := cl.raw
	contentType := cl.contentType
	if payload == nil && cl.body != nil {
		if payload, err = json.Marshal(cl.body); err != nil {
			logger.Error("backend: encode request", zap.Error(err))
			return model.NewClientMisconfiguredError()
		}
		contentType = "application/json"
		if logger.Core().Enabled(zap.DebugLevel) {
			logger.Debug("backend: request",
				zap.String("method", cl.method),
				zap.String("path", cl.path),
				zap.Any("body", observability.RedactJSON(payload, nil)),
			)
		}
	}

	u := c.baseURL.JoinPath(cl.path)
	u.RawQuery = cl.query.Encode()

	if cl.upload && c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	attempts := 1
	if isIdempotent(cl.method) && c.retry.MaxAttempts > 1 {
		attempts = c.retry.MaxAttempts
	}

	var status int
	var body []byte
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.RecordBackendRetry(cl.op)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(c.retry, attempt)):
			}
		}

		var retryable bool
		status, body, retryable, err = c.once(ctx, cl, u.String(), token, payload, contentType, logger)
		if err == nil && !(retryable && attempt < attempts-1) {
			break
		}
		if err != nil && !retryable {
			return err
		}
		logger.Debug("backend: retrying", zap.Int("attempt", attempt+1), zap.Int("status", status), zap.Error(err))
	}
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		msg := serverMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("The server responded with status %d", status)
		}
		logger.Warn("backend: request rejected", zap.Int("status", status), zap.String("message", msg))
		logger.Debug("backend: rejected response", zap.Any("body", observability.RedactJSON(body, nil)))
		return model.NewBackendRejectedError(status, msg)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			logger.Warn("backend: undecodable response", zap.Error(err))
			return model.NewBackendRejectedError(status, "The server returned a response that could not be read")
		}
	}
	return nil
}

// once performs a single attempt. retryable reports whether a repeat may
// succeed; err is nil whenever a response was received.
func (c *Client) once(ctx context.Context, cl call, target, token string, payload []byte, contentType string, logger *zap.Logger) (status int, body []byte, retryable bool, err error) {
	if err := c.breaker.Allow(); err != nil {
		return 0, nil, false, model.NewBackendUnavailableError()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, reader)
	if err != nil {
		logger.Error("backend: build request", zap.Error(err))
		return 0, nil, false, model.NewClientMisconfiguredError()
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+sanitizeHeader(token))
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(cl.op, 0, time.Since(start))
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, nil, false, ctx.Err()
		}
		c.breaker.Failure()
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			logger.Warn("backend: timed out", zap.Error(err))
			return 0, nil, true, model.NewBackendTimeoutError()
		}
		logger.Warn("backend: no response", zap.Error(err))
		return 0, nil, true, model.NewBackendUnavailableError()
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordBackendRequest(cl.op, resp.StatusCode, time.Since(start))
	if err != nil {
		c.breaker.Failure()
		logger.Warn("backend: read response", zap.Error(err))
		return 0, nil, true, model.NewBackendUnavailableError()
	}

	if resp.StatusCode >= 500 {
		c.breaker.Failure()
	} else {
		c.breaker.Success()
	}
	return resp.StatusCode, body, isRetryableStatus(resp.StatusCode), nil
}

// serverMessage extracts a human message from an error body shaped like
// {"message": ...}, {"error": "..."} or {"error": {"message": ...}}.
func serverMessage(body []byte) string {
	var env struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	var s string
	if json.Unmarshal(env.Error, &s) == nil && s != "" {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(env.Error, &nested) == nil {
		return nested.Message
	}
	return ""
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func backoff(cfg config.RetryConfig, attempt int) time.Duration {
	delay := cfg.BackoffInitial
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	mult := cfg.BackoffMultiplier
	if mult <= 1 {
		mult = 2
	}
	ceiling := cfg.BackoffMax
	if ceiling <= 0 {
		ceiling = 2 * time.Second
	}
	for i := 1; i < attempt && delay < ceiling; i++ {
		delay = time.Duration(float64(delay) * mult)
	}
	return min(delay, ceiling)
}

// sanitizeHeader strips CR and LF to prevent header injection.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// escapePath joins path segments, escaping each one.
func escapePath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}
