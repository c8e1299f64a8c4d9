package realtime

import (
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Number of connected real-time subscribers",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Total sync events published, by type",
		},
		[]string{"type"},
	)

	subscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Subscribers removed after falling behind or disconnecting",
		},
	)
)
