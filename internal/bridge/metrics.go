package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers in-process fan-out and broker relays.
type Metrics struct {
	Published        *prometheus.CounterVec
	Delivered        *prometheus.CounterVec
	Backlog          *prometheus.GaugeVec
	Subscribers      prometheus.Gauge
	RelaySent        *prometheus.CounterVec
	RelayFailures    *prometheus.CounterVec
	RelayDropped     *prometheus.CounterVec
	RelayCircuitOpen *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_bridge_published_total",
			Help: "Handshake events published by kind",
		}, []string{"kind"}),
		Delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_bridge_delivered_total",
			Help: "Handshake events handed to a subscriber",
		}, []string{"module"}),
		Backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voltgrid_bridge_subscriber_backlog",
			Help: "Events queued for a subscriber and not yet consumed",
		}, []string{"module"}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "voltgrid_bridge_subscribers",
			Help: "Open bridge subscriptions",
		}),
		RelaySent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_bridge_relay_sent_total",
			Help: "Events acknowledged by an external sink",
		}, []string{"sink"}),
		RelayFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_bridge_relay_failures_total",
			Help: "Failed send attempts to an external sink",
		}, []string{"sink"}),
		RelayDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_bridge_relay_dropped_total",
			Help: "Events given up on after the retry budget was spent",
		}, []string{"sink"}),
		RelayCircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voltgrid_bridge_relay_circuit_open",
			Help: "Relay circuit breaker state (0=closed, 1=open)",
		}, []string{"sink"}),
	}
}

func (m *Metrics) incPublished(kind Kind) {
	if m != nil {
		m.Published.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) incDelivered(module string) {
	if m != nil {
		m.Delivered.WithLabelValues(module).Inc()
	}
}

func (m *Metrics) setBacklog(module string, n int) {
	if m != nil {
		m.Backlog.WithLabelValues(module).Set(float64(n))
	}
}

func (m *Metrics) addSubscribers(delta int) {
	if m != nil {
		m.Subscribers.Add(float64(delta))
	}
}

func (m *Metrics) incRelaySent(sink string) {
	if m != nil {
		m.RelaySent.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) incRelayFailure(sink string) {
	if m != nil {
		m.RelayFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) incRelayDropped(sink string) {
	if m != nil {
		m.RelayDropped.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) setCircuitOpen(sink string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.RelayCircuitOpen.WithLabelValues(sink).Set(v)
}
