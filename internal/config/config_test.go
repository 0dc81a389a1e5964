package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 {
		t.Errorf("CORS.AllowedOrigins = %v, want 1 entry", cfg.Server.CORS.AllowedOrigins)
	}
	if cfg.Backend.BaseURL != "https://api.medinor.example" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Backend.CircuitBreaker.FailureThreshold != 4 {
		t.Errorf("CircuitBreaker.FailureThreshold = %d, want 4", cfg.Backend.CircuitBreaker.FailureThreshold)
	}
	// Unset in the file, so the default survives.
	if cfg.Backend.CircuitBreaker.SuccessThreshold != 2 {
		t.Errorf("CircuitBreaker.SuccessThreshold = %d, want default 2", cfg.Backend.CircuitBreaker.SuccessThreshold)
	}
	if cfg.Backend.Retry.MaxAttempts != 2 {
		t.Errorf("Retry.MaxAttempts = %d, want 2", cfg.Backend.Retry.MaxAttempts)
	}
	if cfg.Sessions.Driver != "redis" {
		t.Errorf("Sessions.Driver = %q, want redis", cfg.Sessions.Driver)
	}
	if cfg.Sessions.TTL != time.Hour {
		t.Errorf("Sessions.TTL = %v, want 1h", cfg.Sessions.TTL)
	}
	if cfg.Lists.DefaultLimit != 50 {
		t.Errorf("Lists.DefaultLimit = %d, want 50", cfg.Lists.DefaultLimit)
	}
	if cfg.Navigation.File != "navigation.yaml" {
		t.Errorf("Navigation.File = %q", cfg.Navigation.File)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_backend(t *testing.T) {
	t.Setenv("MEDINOR_BACKEND_URL", "")
	_, err := Load("testdata/missing_backend.yaml")
	if err == nil {
		t.Fatal("Load() without backend.base_url should return error")
	}
	if !strings.Contains(err.Error(), "backend.base_url") {
		t.Errorf("error = %v, want mention of backend.base_url", err)
	}
}

func TestLoad_bad_driver(t *testing.T) {
	t.Setenv("MEDINOR_SESSIONS_DRIVER", "")
	_, err := Load("testdata/bad_driver.yaml")
	if err == nil {
		t.Fatal("Load() with unknown sessions driver should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sessions.Driver != "memory" {
		t.Errorf("default Sessions.Driver = %q, want memory", cfg.Sessions.Driver)
	}
	if cfg.Lists.DefaultLimit != 25 {
		t.Errorf("default Lists.DefaultLimit = %d, want 25", cfg.Lists.DefaultLimit)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDINOR_SERVER_PORT", "3000")
	t.Setenv("MEDINOR_BACKEND_URL", "http://localhost:4000")
	t.Setenv("MEDINOR_BACKEND_TIMEOUT", "3s")
	t.Setenv("MEDINOR_SESSIONS_DRIVER", "postgres")
	t.Setenv("MEDINOR_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://localhost:4000" {
		t.Errorf("Backend.BaseURL = %q, want env override", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("Backend.Timeout = %v, want 3s", cfg.Backend.Timeout)
	}
	if cfg.Sessions.Driver != "postgres" {
		t.Errorf("Sessions.Driver = %q, want postgres", cfg.Sessions.Driver)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MEDINOR_BACKEND_URL", "")
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "backend.base_url") {
		t.Fatalf("FromEnv() without backend URL error = %v", err)
	}

	t.Setenv("MEDINOR_BACKEND_URL", "https://api.medinor.example")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.medinor.example" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Lists.DefaultLimit != 25 {
		t.Errorf("Lists.DefaultLimit = %d, want default 25", cfg.Lists.DefaultLimit)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Backend.BaseURL = "https://api.medinor.example"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"relative backend url", func(c *Config) { c.Backend.BaseURL = "/api" }},
		{"zero backend timeout", func(c *Config) { c.Backend.Timeout = 0 }},
		{"zero session ttl", func(c *Config) { c.Sessions.TTL = 0 }},
		{"max below default limit", func(c *Config) { c.Lists.MaxLimit = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Validate() on valid config = %v", err)
	}
}
