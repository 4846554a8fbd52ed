package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"voltgrid/internal/ocpi/wire"
	"voltgrid/internal/ratelimit/metrics"
	"voltgrid/internal/ratelimit/middleware"
	"voltgrid/internal/ratelimit/models"
	"voltgrid/internal/ratelimit/store/bucket"
	"voltgrid/pkg/platform/middleware/metadata"
	"voltgrid/pkg/testutil"
)

func serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ocpi/versions", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	metadata.ClientIP(false)(h).ServeHTTP(rec, req)
	return rec
}

func TestLimitDeniesPastBudget(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mw := middleware.New(bucket.NewInMemory(), wire.WriteError,
		middleware.WithMetrics(m),
		middleware.WithLimit(models.ClassDiscovery, models.Limit{Requests: 2, Window: time.Minute}),
	)
	h := mw.Limit(models.ClassDiscovery)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := serve(h, "203.0.113.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, serve(h, "203.0.113.1").Code)

	denied := serve(h, "203.0.113.1")
	testutil.AssertOCPIStatus(t, denied, http.StatusTooManyRequests, wire.StatusClientError)
	assert.NotEmpty(t, denied.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(h, "203.0.113.2").Code, "budget is per client")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Decisions.WithLabelValues("discovery", "denied")))
}

func TestLimitLocksOutAfterInvalidTokens(t *testing.T) {
	mw := middleware.New(bucket.NewInMemory(), wire.WriteError,
		middleware.WithTokenFailureLimit(models.Limit{Requests: 3, Window: 15 * time.Minute}),
	)
	calls := 0
	h := mw.Limit(models.ClassCredentials)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for range 3 {
		assert.Equal(t, http.StatusUnauthorized, serve(h, "198.51.100.9").Code)
	}
	locked := serve(h, "198.51.100.9")
	assert.Equal(t, http.StatusTooManyRequests, locked.Code)
	assert.Equal(t, "900", locked.Header().Get("Retry-After"))
	assert.Equal(t, 3, calls, "locked out client never reaches the handler")

	assert.Equal(t, http.StatusUnauthorized, serve(h, "198.51.100.10").Code)
}

func TestLimitSuccessDoesNotCountTowardLockout(t *testing.T) {
	mw := middleware.New(bucket.NewInMemory(), wire.WriteError,
		middleware.WithTokenFailureLimit(models.Limit{Requests: 1, Window: time.Minute}),
	)
	h := mw.Limit(models.ClassCredentials)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for range 5 {
		assert.Equal(t, http.StatusOK, serve(h, "192.0.2.4").Code)
	}
}

func TestLimitDisabledPassesThrough(t *testing.T) {
	mw := middleware.New(bucket.NewInMemory(), wire.WriteError,
		middleware.WithDisabled(true),
		middleware.WithLimit(models.ClassDiscovery, models.Limit{Requests: 1, Window: time.Minute}),
	)
	h := mw.Limit(models.ClassDiscovery)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for range 3 {
		assert.Equal(t, http.StatusNoContent, serve(h, "192.0.2.5").Code)
	}
}
