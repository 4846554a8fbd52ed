package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"voltgrid/internal/platform/logger"
	"voltgrid/internal/platform/metrics"
	"voltgrid/pkg/platform/middleware/admin"
	"voltgrid/pkg/testutil"
)

type pingRoute string

func (p pingRoute) Register(r chi.Router) {
	r.Get(string(p), func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func newTestRouter(checks ...HealthCheck) http.Handler {
	reg := prometheus.NewRegistry()
	log := logger.Discard()
	return NewRouter(Deps{
		Logger:     log,
		Metrics:    metrics.New(reg),
		Gatherer:   reg,
		OCPI:       []Registrar{pingRoute("/ocpi/ping")},
		Admin:      []Registrar{pingRoute("/admin/ping")},
		AdminGuard: admin.RequireAdminToken("secret", log),
		Health:     checks,
	})
}

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "store", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("refused") }}

	rr := testutil.DoRequest(newTestRouter(ok), testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")

	rr = testutil.DoRequest(newTestRouter(ok, down), testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	assert.Contains(t, rr.Body.String(), `"redis":"down"`)
}

func TestAdminRoutesAreGuarded(t *testing.T) {
	router := newTestRouter()

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/ping"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	req := testutil.NewRequest(t, http.MethodGet, "/admin/ping")
	req.Header.Set("X-Admin-Token", "secret")
	testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNoContent)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ocpi/ping"))
	testutil.AssertStatus(t, rr, http.StatusNoContent)
}

func TestRequestIDAndMetrics(t *testing.T) {
	router := newTestRouter()

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ocpi/ping"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), "voltgrid_http_request_duration_seconds")
}

func TestWithRunsMiddlewareOnlyForWrappedRoutes(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	reg := prometheus.NewRegistry()
	router := NewRouter(Deps{
		Logger:  logger.Discard(),
		Metrics: metrics.New(reg),
		OCPI: []Registrar{
			With(pingRoute("/ocpi/limited"), deny),
			pingRoute("/ocpi/open"),
		},
	})

	testutil.AssertStatus(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ocpi/limited")), http.StatusTooManyRequests)
	testutil.AssertStatus(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ocpi/open")), http.StatusNoContent)
}
