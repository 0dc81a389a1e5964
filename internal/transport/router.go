package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/internal/migration"
	"github.com/medinor/dashboard/internal/navigation"
	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

// Backend is the part of the Medinor backend client called directly by
// handlers. Entity lists and migrations reach the backend through their
// own packages.
type Backend interface {
	Login(ctx context.Context, username, password string) (model.LoginResult, error)
	ListImages(ctx context.Context, productID string) ([]model.ProductImage, error)
	UploadImage(ctx context.Context, productID, fileName string, data io.Reader) (model.ProductImage, error)
	DeleteImage(ctx context.Context, productID, imageID string) error
	SetMainImage(ctx context.Context, productID, imageID string) error
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer
	Authenticate func(http.Handler) http.Handler
	Backend      Backend
	Migrations   *migration.Manager
	Lists        *crud.Registry
	Navigation   *navigation.Provider
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics, and login bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(cfg.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "no route for "+r.Method+" "+r.URL.Path)
	})

	r.Get("/api/health", observability.HandleHealth())
	r.Get("/api/ready", observability.HandleReady(observability.ReadinessChecks{
		NavigationLoaded: deps.Navigation.Loaded,
		SessionStore:     deps.Migrations.Store(),
		Backend:          deps.Backend,
	}))
	if cfg.Observability.Metrics.Enabled && deps.Gatherer != nil {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(RequestLogging(logger))
		r.Post("/api/auth/login", handleLogin(deps.Backend))
	})

	auth := deps.Authenticate
	if auth == nil {
		auth = NewAuthenticator(cfg.Auth, logger).Middleware
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(cfg.Auth))
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Post("/api/auth/logout", handleLogout(deps.Lists))
		r.Get("/api/navigation", handleNavigation(deps.Navigation))

		// {id} is the entity on create and the session id elsewhere.
		r.Route("/api/migrations", func(r chi.Router) {
			r.Post("/{id}", handleMigrationCreate(deps.Migrations, cfg.Ingest.MaxUploadBytes))
			r.Get("/{id}", handleMigrationGet(deps.Migrations))
			r.Delete("/{id}", handleMigrationClear(deps.Migrations))
			r.Put("/{id}/file", handleMigrationUpload(deps.Migrations, cfg.Ingest.MaxUploadBytes))
			r.Post("/{id}/process", handleMigrationProcess(deps.Migrations))
			r.Post("/{id}/execute", handleMigrationExecute(deps.Migrations))
			r.Delete("/{id}/error", handleMigrationClearError(deps.Migrations))
		})

		r.Route("/api/lists/{entity}", func(r chi.Router) {
			r.Get("/", handleListGet(deps.Lists))
			r.Patch("/query", handleListQuery(deps.Lists))
			r.Delete("/error", handleListClearError(deps.Lists))
			r.Post("/items", handleListAdd(deps.Lists))
			r.Get("/items/{id}", handleListGetItem(deps.Lists))
			r.Put("/items/{id}", handleListEdit(deps.Lists))
			r.Post("/edits", handleListTrackEdit(deps.Lists))
			r.Post("/edits/save", handleListSaveEdits(deps.Lists))
			r.Delete("/edits", handleListCancelEdits(deps.Lists))
		})

		r.Route("/api/products/{id}/images", func(r chi.Router) {
			r.Get("/", handleImageList(deps.Backend))
			r.Post("/", handleImageUpload(deps.Backend, cfg.Ingest.MaxUploadBytes))
			r.Delete("/{imageId}", handleImageDelete(deps.Backend))
			r.Put("/{imageId}/main", handleImageSetMain(deps.Backend))
		})
	})

	return r
}
