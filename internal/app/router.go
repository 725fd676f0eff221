package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unifiedbase/unifiedbase/internal/authn"
	"github.com/unifiedbase/unifiedbase/internal/files"
	"github.com/unifiedbase/unifiedbase/internal/identity"
	"github.com/unifiedbase/unifiedbase/internal/observability"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
	"github.com/unifiedbase/unifiedbase/internal/records"
	"github.com/unifiedbase/unifiedbase/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Authn           authn.Middleware
	RBACHandler     *rbac.Handler
	IdentityHandler *identity.Handler
	RecordsHandler  *records.Handler
	FilesHandler    *files.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.Authn.Authenticate)

		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.IdentityHandler != nil {
			params.IdentityHandler.MountRoutes(r)
		}
		if params.RecordsHandler != nil {
			params.RecordsHandler.MountRoutes(r)
		}
		if params.FilesHandler != nil {
			params.FilesHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
