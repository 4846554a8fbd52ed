// Package ratelimit throttles OCPI callers per client address and locks out
// clients that keep presenting invalid tokens.
package ratelimit

import (
	"log/slog"

	"voltgrid/internal/ocpi/wire"
	"voltgrid/internal/platform/config"
	"voltgrid/internal/ratelimit/metrics"
	"voltgrid/internal/ratelimit/middleware"
	"voltgrid/internal/ratelimit/models"
)

type Middleware = middleware.Middleware

// NewMiddleware builds the OCPI limiter from configuration. Refusals use
// the OCPI envelope.
func NewMiddleware(cfg config.RateLimitConfig, store middleware.Limiter, logger *slog.Logger, m *metrics.Metrics) *Middleware {
	return middleware.New(store, wire.WriteError,
		middleware.WithLogger(logger),
		middleware.WithMetrics(m),
		middleware.WithDisabled(cfg.Disabled),
		middleware.WithLimit(models.ClassDiscovery, models.Limit{Requests: cfg.DiscoveryRequests, Window: cfg.Window}),
		middleware.WithLimit(models.ClassCredentials, models.Limit{Requests: cfg.CredentialsRequests, Window: cfg.Window}),
		middleware.WithTokenFailureLimit(models.Limit{Requests: cfg.TokenFailures, Window: cfg.LockoutWindow}),
	)
}
