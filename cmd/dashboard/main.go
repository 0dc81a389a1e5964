// Package main is the entry point for the Medinor dashboard BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/backend"
	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/internal/migration"
	"github.com/medinor/dashboard/internal/navigation"
	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "medinor-dashboard", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	metrics := observability.InitMetrics(registry)

	client, err := backend.New(cfg.Backend, backend.RequestCredentials{},
		backend.WithLogger(logger.Named("backend")),
		backend.WithMetrics(metrics),
	)
	if err != nil {
		logger.Error("backend client initialization failed", zap.Error(err))
		return 1
	}

	nav, err := navigation.NewProvider(cfg.Navigation.File, logger.Named("navigation"), metrics)
	if err != nil {
		logger.Error("navigation load failed", zap.Error(err))
		return 1
	}

	store, storeCloser, err := buildSessionStore(ctx, cfg.Sessions, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}

	migrations := migration.NewManager(store, cfg.Sessions.TTL, migration.Deps{
		Ingester: ingest.New(logger.Named("ingest"), metrics),
		Backend:  client,
		Logger:   logger.Named("migration"),
		Metrics:  metrics,
	})

	lists := crud.NewRegistry(cfg.Lists.IdleTTL, logger.Named("crud"), metrics)
	client.RegisterLists(lists, crud.Options{
		DefaultLimit: cfg.Lists.DefaultLimit,
		MaxLimit:     cfg.Lists.MaxLimit,
		Validator:    crud.NewValidator(),
		Logger:       logger.Named("crud"),
		Metrics:      metrics,
	})

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Gatherer:     registry,
		Authenticate: transport.NewAuthenticator(cfg.Auth, logger.Named("auth")).Middleware,
		Backend:      client,
		Migrations:   migrations,
		Lists:        lists,
		Navigation:   nav,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go migrations.Run(bgCtx, cfg.Sessions.SweepInterval)
	go lists.Run(bgCtx, cfg.Sessions.SweepInterval)
	go reloadOnHangup(bgCtx, nav, logger)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("sessions", cfg.Sessions.Driver),
		zap.String("navigation", nav.Checksum()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if storeCloser != nil {
		storeCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore creates the migration session store for cfg.Driver.
func buildSessionStore(ctx context.Context, cfg config.SessionsConfig, logger *zap.Logger) (migration.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory migration session store")
		return migration.NewMemoryStore(), nil, nil

	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("session store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("session store: ping redis: %w", err)
		}
		logger.Info("using redis migration session store", zap.String("prefix", cfg.KeyPrefix))
		return migration.NewRedisStore(client, cfg.KeyPrefix), func() { _ = client.Close() }, nil

	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("session store: %s environment variable not set", cfg.DSNEnv)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: parse DSN: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("session store: ping: %w", err)
		}
		store := migration.NewPgStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		logger.Info("using postgres migration session store")
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}

// reloadOnHangup re-reads the navigation file on SIGHUP.
func reloadOnHangup(ctx context.Context, nav *navigation.Provider, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := nav.Reload(); err != nil {
				logger.Error("navigation reload failed, keeping previous tree", zap.Error(err))
			}
		}
	}
}
