package alerts

import (
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Alerts processed by kind and delivery result",
		},
		[]string{"kind", "result"},
	)

	alertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Alerts dropped because the delivery queue was full",
		},
	)
)
