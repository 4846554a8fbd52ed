package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for handshakes.
type Metrics struct {
	Handshakes       *prometheus.CounterVec
	HandshakeLatency *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec
	CommitRetries    prometheus.Counter
	InFlight         prometheus.Gauge
	Deregistrations  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_handshakes_total",
			Help: "Completed handshake invocations by direction and outcome",
		}, []string{"direction", "outcome"}),
		HandshakeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voltgrid_handshake_duration_seconds",
			Help:    "End-to-end handshake duration including counterparty calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"direction"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_handshake_stage_failures_total",
			Help: "Handshake failures by the state they occurred in",
		}, []string{"state", "code"}),
		CommitRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_handshake_commit_retries_total",
			Help: "Commits retried after losing a compare-and-set",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "voltgrid_handshakes_in_flight",
			Help: "Handshakes currently running",
		}),
		Deregistrations: f.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_deregistrations_total",
			Help: "Registrations revoked by the counterparty",
		}),
	}
}

// ObserveHandshake records one finished handshake. Call with the start time.
func (m *Metrics) ObserveHandshake(direction, outcome, failedIn string, start time.Time) {
	m.Handshakes.WithLabelValues(direction, outcome).Inc()
	m.HandshakeLatency.WithLabelValues(direction).Observe(time.Since(start).Seconds())
	if failedIn != "" {
		m.StageFailures.WithLabelValues(failedIn, outcome).Inc()
	}
}

func (m *Metrics) IncCommitRetry() {
	m.CommitRetries.Inc()
}

func (m *Metrics) IncDeregistration() {
	m.Deregistrations.Inc()
}
