package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the scheduler/renewal counters exposed for scraping; ambient
// observability infra riding on client_golang, which was already an
// indirect dependency of the teacher's stack.
type Metrics struct {
	RenewalsTotal       prometheus.Counter
	RenewalsFailedTotal prometheus.Counter
	AuthorizationsTotal prometheus.Counter
	InstallStepsTotal   prometheus.Counter
}

// NewMetrics registers the four counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RenewalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewals_total",
			Help: "Total renewal attempts processed.",
		}),
		RenewalsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewals_failed_total",
			Help: "Total renewal attempts that ended in failure.",
		}),
		AuthorizationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authorizations_total",
			Help: "Total per-identifier authorization attempts driven.",
		}),
		InstallStepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "install_steps_total",
			Help: "Total installation plugin steps run.",
		}),
	}
	reg.MustRegister(m.RenewalsTotal, m.RenewalsFailedTotal, m.AuthorizationsTotal, m.InstallStepsTotal)
	return m
}
