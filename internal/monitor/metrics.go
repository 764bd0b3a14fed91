package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coursesync"

var (
	syncHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "healthy",
			Help:      "1 if the last health check passed, 0 otherwise",
		},
	)

	syncFailureRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "failure_rate",
			Help:      "Failure rate over the trailing health window",
		},
	)

	criticalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "critical_failures_total",
			Help:      "Total events evicted after exhausting retries",
		},
		[]string{"event_type"},
	)

	auditWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Total audit trail writes that failed after retries",
		},
		[]string{"record"},
	)
)

func recordHealth(report *HealthReport) {
	if report.Healthy {
		syncHealthy.Set(1)
	} else {
		syncHealthy.Set(0)
	}
	syncFailureRate.Set(report.FailureRate)
}
