package observability

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/model"
)

// Context key for the logger.
type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stdout.
//
// Log level usage conventions:
//   - error: Infrastructure failures (session store down, unhandled panics), 5xx responses
//   - warn:  Client errors (4xx), degraded backend (circuit breaker open), duplicate rows
//   - info:  Request start/end, migration transitions, navigation reload
//   - debug: List cache fetches, dropped ingestion rows, backend payload details
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns a logger enriched with RequestContext fields.
// If no logger is in the context, the fallback is used.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("subject_id", rctx.SubjectID),
		zap.String("role", rctx.Role),
		zap.String("correlation_id", rctx.CorrelationID),
	}

	// Include trace_id if present.
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}

	return logger.With(fields...)
}

// defaultSensitiveFields are redacted in debug logging output. Keys are
// compared case-insensitively; identiftri is the client tax id column.
var defaultSensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"authorization": true,
	"identiftri":    true,
	"jwt":           true,
}

const redacted = "[REDACTED]"

// maxLoggedPayload bounds the payloads RedactJSON decodes. Migration
// batches can hold thousands of records.
const maxLoggedPayload = 64 << 10

// RedactBody returns a copy of body with sensitive fields replaced by
// "[REDACTED]", descending into nested objects and arrays. The
// sensitiveFields list is merged with the default names. This is intended
// for debug-level logging only.
func RedactBody(body map[string]any, sensitiveFields []string) map[string]any {
	if body == nil {
		return nil
	}
	return redactValue(body, redactSet(sensitiveFields)).(map[string]any)
}

// RedactJSON decodes a JSON payload and redacts it like RedactBody.
// Oversized or undecodable payloads are described by their size only.
func RedactJSON(data []byte, sensitiveFields []string) any {
	if len(data) > maxLoggedPayload {
		return map[string]any{"bytes": len(data)}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return map[string]any{"bytes": len(data)}
	}
	return redactValue(v, redactSet(sensitiveFields))
}

func redactSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(defaultSensitiveFields)+len(extra))
	for k := range defaultSensitiveFields {
		set[k] = true
	}
	for _, f := range extra {
		set[strings.ToLower(f)] = true
	}
	return set
}

func redactValue(v any, set map[string]bool) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if set[strings.ToLower(k)] {
				out[k] = redacted
				continue
			}
			out[k] = redactValue(val, set)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = redactValue(val, set)
		}
		return out
	default:
		return v
	}
}
