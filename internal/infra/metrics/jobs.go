package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		sweepRunsTotal,
		sweepItemsTotal,
		sweepDuration,
	)
}

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_sweep_runs_total",
			Help: "Scheduled sweep runs by job and result (ok, error, locked).",
		},
		[]string{"job", "result"},
	)

	sweepItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_sweep_items_total",
			Help: "Records handled by sweeps, labeled by job and outcome.",
		},
		[]string{"job", "outcome"}, // 'succeeded', 'skipped', 'failed'
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifecycle_sweep_duration_seconds",
			Help:    "Wall time of sweep runs.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)
)

func IncSweepRun(job, result string) {
	sweepRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
}

// ObserveSweep records the per-item outcome counters of a finished run.
func ObserveSweep(job string, succeeded, skipped, failed int, took time.Duration) {
	j := norm(job)
	sweepItemsTotal.WithLabelValues(j, "succeeded").Add(float64(succeeded))
	sweepItemsTotal.WithLabelValues(j, "skipped").Add(float64(skipped))
	sweepItemsTotal.WithLabelValues(j, "failed").Add(float64(failed))
	sweepDuration.WithLabelValues(j).Observe(took.Seconds())
}
