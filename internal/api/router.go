package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a dependency is reachable
type Pinger func(ctx context.Context) error

// RouterOption adds optional routes
type RouterOption func(chi.Router)

// WithFiles serves signed filesystem URLs under the handler's prefix.
func WithFiles(files *FilesHandler) RouterOption {
	return func(r chi.Router) {
		if files != nil {
			r.Handle(files.Prefix()+"*", files)
		}
	}
}

// NewRouter wires the asset routes under /api/v1 together with /healthz
// and /metrics.
func NewRouter(assets *AssetHandler, gatherer prometheus.Gatherer, ping Pinger, opts ...RouterOption) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(assets.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/api/v1", assets.Routes())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	for _, opt := range opts {
		opt(r)
	}

	return r
}
