// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Auth          AuthConfig          `yaml:"auth"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Lists         ListsConfig         `yaml:"lists"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Navigation    NavigationConfig    `yaml:"navigation"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// BackendConfig describes the Medinor REST backend.
type BackendConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	UploadTimeout  time.Duration        `yaml:"upload_timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings for the backend.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetryConfig describes retry settings for idempotent backend calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// AuthConfig describes how the BFF reads the bearer tokens the backend
// issues. When SecretEnv names a non-empty variable the signature is
// verified with it; otherwise tokens are decoded and only expiry is checked,
// leaving authorization to the backend.
type AuthConfig struct {
	SecretEnv  string        `yaml:"secret_env"`
	Algorithms []string      `yaml:"algorithms"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
	RoleClaim  string        `yaml:"role_claim"`
	UserClaim  string        `yaml:"user_claim"`
}

// SessionsConfig describes migration session persistence.
type SessionsConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	AddrEnv         string        `yaml:"addr_env"`
	DB              int           `yaml:"db"`
	KeyPrefix       string        `yaml:"key_prefix"`
	TTL             time.Duration `yaml:"ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ListsConfig describes per-screen list caches.
type ListsConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	MaxLimit     int           `yaml:"max_limit"`
	IdleTTL      time.Duration `yaml:"idle_ttl"`
}

// IngestConfig describes spreadsheet upload limits.
type IngestConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// NavigationConfig points at an optional navigation definition file. An
// empty File uses the built-in tree.
type NavigationConfig struct {
	File string `yaml:"file"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			HandlerTimeout:  55 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Backend: BackendConfig{
			Timeout:       15 * time.Second,
			UploadTimeout: 60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
			},
		},
		Auth: AuthConfig{
			SecretEnv:  "MEDINOR_JWT_SECRET",
			Algorithms: []string{"HS256"},
			ClockSkew:  30 * time.Second,
			RoleClaim:  "role",
			UserClaim:  "username",
		},
		Sessions: SessionsConfig{
			Driver:          "memory",
			DSNEnv:          "MEDINOR_SESSIONS_DSN",
			AddrEnv:         "MEDINOR_SESSIONS_REDIS_ADDR",
			KeyPrefix:       "medinor:migration:",
			TTL:             2 * time.Hour,
			SweepInterval:   5 * time.Minute,
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lists: ListsConfig{
			DefaultLimit: 25,
			MaxLimit:     200,
			IdleTTL:      30 * time.Minute,
		},
		Ingest: IngestConfig{
			MaxUploadBytes: 20 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from the defaults and MEDINOR_* environment
// variables, for tools that run without a config file.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "backend.base_url must be an absolute URL")
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, "backend.timeout must be positive")
	}
	switch c.Sessions.Driver {
	case "memory", "redis", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("sessions.driver %q must be one of memory, redis, postgres", c.Sessions.Driver))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, "sessions.ttl must be positive")
	}
	if c.Lists.DefaultLimit < 1 {
		errs = append(errs, "lists.default_limit must be at least 1")
	}
	if c.Lists.MaxLimit < c.Lists.DefaultLimit {
		errs = append(errs, "lists.max_limit must not be below lists.default_limit")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads MEDINOR_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDINOR_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MEDINOR_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("MEDINOR_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("MEDINOR_SESSIONS_DRIVER"); v != "" {
		cfg.Sessions.Driver = v
	}
	if v := os.Getenv("MEDINOR_NAVIGATION_FILE"); v != "" {
		cfg.Navigation.File = v
	}
	if v := os.Getenv("MEDINOR_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
