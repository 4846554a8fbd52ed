package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts rate-limit decisions and invalid-token lockouts.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	TokenFailures prometheus.Counter
	Lockouts      prometheus.Counter
	StoreErrors   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_ratelimit_decisions_total",
			Help: "Rate limit decisions on OCPI routes by class and outcome",
		}, []string{"class", "outcome"}),
		TokenFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_ratelimit_token_failures_total",
			Help: "OCPI requests rejected with 401 and counted toward lockout",
		}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_ratelimit_lockouts_total",
			Help: "Requests refused because the client presented too many invalid tokens",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_ratelimit_store_errors_total",
			Help: "Limiter store failures; the request was let through",
		}),
	}
}

func (m *Metrics) Decision(class, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) TokenFailure() {
	if m == nil {
		return
	}
	m.TokenFailures.Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
