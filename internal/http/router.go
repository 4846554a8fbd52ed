package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voltgrid/internal/platform/metrics"
	"voltgrid/internal/platform/middleware"
	"voltgrid/pkg/platform/httputil"
	"voltgrid/pkg/platform/middleware/metadata"
	"voltgrid/pkg/platform/middleware/request"
	"voltgrid/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// With mounts reg inside a group running mw first.
func With(reg Registrar, mw ...func(http.Handler) http.Handler) Registrar {
	return guarded{Registrar: reg, mw: mw}
}

type guarded struct {
	Registrar
	mw []func(http.Handler) http.Handler
}

func (g guarded) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(g.mw...)
		g.Registrar.Register(r)
	})
}

// HealthCheck probes one backing service. Check must honour ctx.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// OCPI handlers face counterparties and authenticate with OCPI tokens.
	OCPI []Registrar
	// Admin handlers sit behind AdminGuard.
	Admin      []Registrar
	AdminGuard func(http.Handler) http.Handler
	Health     []HealthCheck
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// NewRouter wires every public endpoint behind the shared middleware chain.
// Handlers stay thin and delegate to services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(requesttime.Middleware(time.Now))
	r.Use(metadata.ClientIP(d.TrustProxy))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Latency(d.Metrics))

	r.Get("/health", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	for _, h := range d.OCPI {
		h.Register(r)
	}
	if len(d.Admin) > 0 && d.AdminGuard != nil {
		r.Group(func(r chi.Router) {
			r.Use(d.AdminGuard)
			for _, h := range d.Admin {
				h.Register(r)
			}
		})
	}
	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				results[c.Name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[c.Name] = "up"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
