package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tenant directory.
type Metrics struct {
	StatusChanges       *prometheus.CounterVec
	RoleResolutions     *prometheus.CounterVec
	ResolveRoleDuration prometheus.Histogram
}

// New creates tenant metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_tenant_status_changes_total",
			Help: "Tenant activations and deactivations",
		}, []string{"status"}),
		RoleResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_tenant_role_resolutions_total",
			Help: "Resolutions of local credentials roles by outcome",
		}, []string{"outcome"}),
		ResolveRoleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltgrid_tenant_resolve_roles_duration_seconds",
			Help:    "Duration of local role resolution on the handshake path",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

// ObserveResolveRoles records one resolution. Call with time.Now() at the start.
func (m *Metrics) ObserveResolveRoles(outcome string, start time.Time) {
	m.RoleResolutions.WithLabelValues(outcome).Inc()
	m.ResolveRoleDuration.Observe(time.Since(start).Seconds())
}
