package support

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the support subsystem.
type Metrics struct {
	CustomersCreated prometheus.Counter
	IncidentsCreated *prometheus.CounterVec
	StatusUpdates    prometheus.Counter
	PriorityScores   prometheus.Histogram
}

// NewMetrics registers and returns support metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CustomersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soporte_customers_created_total",
			Help: "Total customers created via the API.",
		}),
		IncidentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soporte_incidents_created_total",
			Help: "Total incidents created via the API by derived priority tier.",
		}, []string{"tier"}),
		StatusUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soporte_status_updates_total",
			Help: "Total incident status updates.",
		}),
		PriorityScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soporte_priority_score",
			Help:    "Derived priority score of created incidents.",
			Buckets: prometheus.LinearBuckets(0, 0.25, 8), // 0 .. 1.75
		}),
	}

	reg.MustRegister(
		m.CustomersCreated,
		m.IncidentsCreated,
		m.StatusUpdates,
		m.PriorityScores,
	)

	return m
}
