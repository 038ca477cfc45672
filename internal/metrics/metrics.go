package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_claims_total",
			Help: "Total number of claim calls by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total number of finalized delivery attempts by outcome.",
		},
		[]string{"outcome"}, // succeeded, retried, failed
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_retries_total",
			Help: "Total number of delivery retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	PermanentFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_permanent_failures_total",
			Help: "Total number of attempts that exhausted the retry ceiling.",
		},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_store_errors_total",
			Help: "Total number of attempt store failures by operation.",
		},
		[]string{"op"}, // claim, finalize
	)

	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookline_delivery_latency_seconds",
			Help:    "Outbound webhook request latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"outcome"},
	)

	QueueIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hookline_queue_idle",
			Help: "1 when the last claim returned no ready attempt for this worker, else 0.",
		},
		[]string{"worker"},
	)
)

// RecordClaim records the result of a single claim call.
func RecordClaim(result string) {
	ClaimsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery records a finalized attempt and its request latency.
func RecordDelivery(outcome string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
	DeliveryLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordRetry records a scheduled retry by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordPermanentFailure records an attempt crossing the retry ceiling.
func RecordPermanentFailure() {
	PermanentFailuresTotal.Inc()
}

// RecordStoreError records a store failure for the given operation.
func RecordStoreError(op string) {
	StoreErrorsTotal.WithLabelValues(op).Inc()
}

// SetQueueIdle flips the idle gauge for a worker partition.
func SetQueueIdle(worker string, idle bool) {
	v := 0.0
	if idle {
		v = 1.0
	}
	QueueIdle.WithLabelValues(worker).Set(v)
}

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(ClaimsTotal, DeliveriesTotal, RetriesTotal, PermanentFailuresTotal, StoreErrorsTotal, DeliveryLatency, QueueIdle)
}
