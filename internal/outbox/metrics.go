package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox events that failed to publish and routed to DLQ.",
	})

	deferredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "outbox",
		Name:      "events_deferred_total",
		Help:      "Number of outbox events left for a later poll because the producer circuit was open.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "matchday",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of outbox events routed to the dead-letter queue, labeled by topic.",
	}, []string{"topic"})

	breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchday",
		Subsystem: "outbox",
		Name:      "producer_breaker_state",
		Help:      "Producer circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, deferredCounter, batchDuration, dlqCounter, breakerState)
}
