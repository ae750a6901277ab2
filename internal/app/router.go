package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valuetrack/valuetrack/internal/audit"
	"github.com/valuetrack/valuetrack/internal/observability"
	"github.com/valuetrack/valuetrack/internal/permissions"
	"github.com/valuetrack/valuetrack/internal/roles"
	"github.com/valuetrack/valuetrack/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	AuditHandler       *audit.Handler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
	Pool               *pgxpool.Pool
}

// NewRouter assembles the chi router with the shared middleware chain.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  p.Logger,
		Config:  p.Config,
		Metrics: p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if p.Pool != nil {
			if err := p.Pool.Ping(req.Context()); err != nil {
				p.Logger.Warn("health check", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/roles", p.RolesHandler.MountRoutes)
	r.Route("/users", p.RolesHandler.MountUserRoutes)
	r.Route("/permissions", p.PermissionsHandler.MountRoutes)
	r.Route("/audit", p.AuditHandler.MountRoutes)
	if p.JobsHandler != nil {
		r.Route("/jobs", p.JobsHandler.MountRoutes)
	}
	return r
}
