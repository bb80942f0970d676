// Package httptransport assembles the HTTP surface: the shared
// middleware chain, public health and metrics endpoints, and the
// authenticated API routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joelborellis/mcp-registry/internal/platform/metrics"
	"github.com/joelborellis/mcp-registry/internal/platform/middleware"
	"github.com/joelborellis/mcp-registry/pkg/platform/httputil"
	"github.com/joelborellis/mcp-registry/pkg/platform/middleware/metadata"
	request "github.com/joelborellis/mcp-registry/pkg/platform/middleware/request"
	"github.com/joelborellis/mcp-registry/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a handler's routes on the authenticated router.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// Pinger reports backing-store health for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps carries everything the router needs.
type Deps struct {
	Logger      *slog.Logger
	HTTPMetrics *metrics.HTTP
	DB          Pinger
	// RequireAuth wraps the API routes; health and metrics stay public.
	RequireAuth func(http.Handler) http.Handler
	// Handlers are mounted inside the authenticated group.
	Handlers []RouteRegistrar
}

// NewRouter wires the complete route tree.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(d.HTTPMetrics.Middleware)

	r.Get("/health", handleHealth(d.DB))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		api.Use(d.RequireAuth)
		for _, h := range d.Handlers {
			h.Register(api)
		}
	})

	return r
}

func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database unreachable",
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
