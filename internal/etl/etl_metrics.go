package etl

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the ingestion subsystem.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	RowsInserted *prometheus.CounterVec
	RowsSkipped  *prometheus.CounterVec
	RunDuration  prometheus.Histogram
}

// NewMetrics registers and returns ingestion metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soporte_ingest_runs_total",
			Help: "Total ingestion runs by outcome.",
		}, []string{"outcome"}),
		RowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soporte_ingest_rows_inserted_total",
			Help: "Rows inserted by ingestion, by entity.",
		}, []string{"entity"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soporte_ingest_rows_skipped_total",
			Help: "Rows skipped by ingestion, by reason.",
		}, []string{"reason"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soporte_ingest_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RowsInserted,
		m.RowsSkipped,
		m.RunDuration,
	)
	return m
}
