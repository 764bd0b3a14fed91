package eventsync

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coursesync"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queue_size",
			Help:      "Number of sync events in queue by state",
		},
		[]string{"state"},
	)

	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_emitted_total",
			Help:      "Total sync events emitted by type and mode",
		},
		[]string{"event_type", "mode"},
	)

	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_processed_total",
			Help:      "Total dispatch attempts by result (completed, retry, evicted)",
		},
		[]string{"result"},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total webhook requests by result",
		},
		[]string{"result"},
	)

	webhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "delivery_duration_seconds",
			Help:      "Time to deliver an event to a single endpoint",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

func recordEmitted(eventType, mode string) {
	eventsEmitted.WithLabelValues(eventType, mode).Inc()
}

func recordProcessed(result string) {
	eventsProcessed.WithLabelValues(result).Inc()
}

func recordDelivery(err error, duration time.Duration) {
	webhookDuration.Observe(duration.Seconds())

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrDeliveryTimeout):
		result = "timeout"
	case errors.Is(err, ErrNonSuccessStatus):
		result = "non_2xx"
	default:
		result = "network_error"
	}
	webhookDeliveries.WithLabelValues(result).Inc()
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
