package syncer

import (
	"time"

	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total orchestrator runs by outcome (ok, partial, aborted)",
		},
		[]string{"outcome"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full orchestrator run",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	sourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "source_total",
			Help:      "Total per-source sync attempts",
		},
		[]string{"connector", "outcome", "error_kind"},
	)

	sourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "source_duration_seconds",
			Help:      "Duration of one data source sync",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"connector"},
	)

	sourceRetryCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "source_retry_count",
			Help:      "Consecutive failed attempts per data source",
		},
		[]string{"data_source"},
	)

	triggersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "triggers_dropped_total",
			Help:      "Triggers ignored because a run was already in progress",
		},
		[]string{"trigger"},
	)
)

func recordSource(result SourceResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	sourceTotal.WithLabelValues(string(result.Type), outcome, string(result.ErrorKind)).Inc()
	sourceDuration.WithLabelValues(string(result.Type)).Observe(result.Duration.Seconds())
	sourceRetryCount.WithLabelValues(result.Name).Set(float64(result.RetryCount))
}

func recordRun(outcome string, duration time.Duration) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(duration.Seconds())
}
