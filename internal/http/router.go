// Package httpapi assembles the chi router: shared middleware, public probes,
// authenticated domain routes and the admin surface.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qualtrack/internal/platform/metrics"
	"qualtrack/pkg/platform/httputil"
	adminmw "qualtrack/pkg/platform/middleware/admin"
	auth "qualtrack/pkg/platform/middleware/auth"
	metadata "qualtrack/pkg/platform/middleware/metadata"
	request "qualtrack/pkg/platform/middleware/request"
	"qualtrack/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Validator auth.TokenValidator
	// RateLimit wraps authenticated routes. Nil skips rate limiting.
	RateLimit  func(http.Handler) http.Handler
	AdminToken string

	Handlers      []Registrar
	AdminHandlers []Registrar
	Checks        map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/health", healthHandler(d.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Validator, d.Logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit)
		}
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(d.AdminToken, d.Logger))
		for _, h := range d.AdminHandlers {
			h.Register(r)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
