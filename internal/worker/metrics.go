package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported by the worker pool.
type Metrics struct {
	JobsCompletedTotal prometheus.Counter
	JobsFailedTotal    prometheus.Counter
	InFlightJobs       prometheus.Gauge
	JobDuration        prometheus.Histogram
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// InitMetrics registers and returns the singleton worker Metrics.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			JobsCompletedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "asset_worker_jobs_completed_total",
				Help: "Total number of jobs that finished successfully.",
			}),
			JobsFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "asset_worker_jobs_failed_total",
				Help: "Total number of jobs that finished in a failed state.",
			}),
			InFlightJobs: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "asset_worker_inflight_jobs",
				Help: "Number of jobs currently held by a worker goroutine.",
			}),
			JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "asset_worker_job_duration_seconds",
				Help:    "Wall-clock time spent running a single job to a terminal outcome.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}),
		}
	})
	return metricsInstance
}
