package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the job pipeline.
type Metrics struct {
	// Job execution
	JobRuns     *prometheus.CounterVec // job outcome counts
	JobDuration *prometheus.HistogramVec

	// Price acquisition
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	PriceUpserts     prometheus.Counter

	// Snapshots
	SnapshotRowsCreated *prometheus.CounterVec
}

// NewMetrics registers all metrics on the given registerer.
// Each caller supplies its own registry, so repeated construction (as in
// tests) never trips duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patrimonio_job_runs_total",
			Help: "Job runs by job name and outcome (completed, failed, skipped).",
		}, []string{"job", "outcome"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patrimonio_job_duration_seconds",
			Help:    "Wall-clock duration of job runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"job"}),

		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patrimonio_provider_requests_total",
			Help: "Price provider resolutions by provider and outcome (hit, miss).",
		}, []string{"provider", "outcome"}),

		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patrimonio_provider_latency_seconds",
			Help:    "Latency of individual price provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),

		PriceUpserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "patrimonio_price_cache_upserts_total",
			Help: "Successful price cache upserts.",
		}),

		SnapshotRowsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patrimonio_snapshot_rows_created_total",
			Help: "Snapshot rows written by kind (ticker, account).",
		}, []string{"kind"}),
	}
}
