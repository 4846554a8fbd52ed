package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks how the partner directory consumes handshake events.
type Metrics struct {
	EventsApplied *prometheus.CounterVec
	Partners      *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_partner_events_total",
			Help: "Handshake events seen by the partner directory by kind and outcome",
		}, []string{"kind", "outcome"}),
		Partners: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voltgrid_partners",
			Help: "Known partners by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncrementEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(kind, outcome).Inc()
}

// Transition moves one partner between status gauges; from may be empty.
func (m *Metrics) Transition(from, to string) {
	if m == nil || from == to {
		return
	}
	if from != "" {
		m.Partners.WithLabelValues(from).Dec()
	}
	m.Partners.WithLabelValues(to).Inc()
}
