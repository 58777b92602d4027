package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	invoicinghttp "github.com/odyssey-erp/payalloc/internal/invoicing/http"
	"github.com/odyssey-erp/payalloc/internal/observability"
	"github.com/odyssey-erp/payalloc/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
	RunHandler *invoicinghttp.Handler
}

// NewRouter constructs the ops chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.RunHandler != nil {
		tokenHash := ""
		if params.Config != nil {
			tokenHash = params.Config.OpsTokenHash
		}
		r.Group(func(r chi.Router) {
			r.Use(RequireOpsToken(tokenHash, params.Logger))
			r.Route("/runs", params.RunHandler.MountRoutes)
		})
	}

	return r
}
