// Package middleware throttles OCPI callers by client address.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"voltgrid/internal/ratelimit/metrics"
	"voltgrid/internal/ratelimit/models"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/middleware/metadata"
	"voltgrid/pkg/requestcontext"
)

// Limiter is a sliding-window counter store.
type Limiter interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.Result, error)
	Count(ctx context.Context, key string, window time.Duration) (int, error)
}

// ErrorWriter renders a refusal in the caller's wire format.
type ErrorWriter func(w http.ResponseWriter, err error)

type Middleware struct {
	store      Limiter
	writeError ErrorWriter
	logger     *slog.Logger
	metrics    *metrics.Metrics
	limits     map[models.Class]models.Limit
	failures   models.Limit
	disabled   bool
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithLimit sets the request budget for one class. Classes without a limit
// are not throttled.
func WithLimit(class models.Class, limit models.Limit) Option {
	return func(m *Middleware) {
		m.limits[class] = limit
	}
}

// WithTokenFailureLimit locks a client out once it has collected
// limit.Requests 401 responses within limit.Window.
func WithTokenFailureLimit(limit models.Limit) Option {
	return func(m *Middleware) {
		m.failures = limit
	}
}

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(store Limiter, writeError ErrorWriter, opts ...Option) *Middleware {
	m := &Middleware{
		store:      store,
		writeError: writeError,
		logger:     slog.New(slog.DiscardHandler),
		limits:     make(map[models.Class]models.Limit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limit applies the lockout check, then the class budget. A store failure
// lets the request through.
func (m *Middleware) Limit(class models.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.disabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := metadata.GetClientIP(ctx)
			if ip == "" {
				ip = metadata.ClientIPFromRequest(r, false)
			}

			if m.lockedOut(ctx, ip) {
				m.metrics.Lockout()
				m.metrics.Decision(string(class), "locked_out")
				m.logger.WarnContext(ctx, "client locked out after invalid tokens",
					"request_id", requestcontext.RequestID(ctx),
					"ip_prefix", ipPrefix(ip),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(m.failures.Window)))
				m.writeError(w, dErrors.New(dErrors.CodeRateLimited, "too many invalid tokens"))
				return
			}

			if limit, ok := m.limits[class]; ok && limit.Enabled() {
				res, err := m.store.AllowN(ctx, models.RequestKey(class, ip), 1, limit.Requests, limit.Window)
				switch {
				case err != nil:
					m.storeFailed(ctx, err)
				case !res.Allowed:
					m.metrics.Decision(string(class), "denied")
					addHeaders(w, res)
					w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
					m.writeError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
					return
				default:
					m.metrics.Decision(string(class), "allowed")
					addHeaders(w, res)
				}
			}

			if !m.failures.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() == http.StatusUnauthorized {
				m.recordFailure(ctx, ip)
			}
		})
	}
}

func (m *Middleware) lockedOut(ctx context.Context, ip string) bool {
	if !m.failures.Enabled() {
		return false
	}
	n, err := m.store.Count(ctx, models.FailureKey(ip), m.failures.Window)
	if err != nil {
		m.storeFailed(ctx, err)
		return false
	}
	return n >= m.failures.Requests
}

func (m *Middleware) recordFailure(ctx context.Context, ip string) {
	m.metrics.TokenFailure()
	// The failure window only counts; it never denies by itself.
	if _, err := m.store.AllowN(ctx, models.FailureKey(ip), 1, math.MaxInt32, m.failures.Window); err != nil {
		m.storeFailed(ctx, err)
	}
}

func (m *Middleware) storeFailed(ctx context.Context, err error) {
	m.metrics.StoreError()
	m.logger.ErrorContext(ctx, "rate limit store failed, allowing request",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func addHeaders(w http.ResponseWriter, res *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// ipPrefix keeps logs useful for spotting abuse without recording full addresses.
func ipPrefix(ip string) string {
	parsed := net.ParseIP(ip)
	switch {
	case parsed == nil:
		return "invalid"
	case parsed.To4() != nil:
		return parsed.Mask(net.CIDRMask(24, 32)).String() + "/24"
	default:
		return parsed.Mask(net.CIDRMask(48, 128)).String() + "/48"
	}
}
