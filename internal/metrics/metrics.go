// Package metrics exposes Prometheus counters and histograms for the
// delivery pipeline, grounded on the registry/vec pattern used by
// mattcburns-shoal-provision's provisioner metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	IngestRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webhookrelay",
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Ingestion requests grouped by outcome (accepted, bad_signature, bad_json, unknown_subscription, store_error).",
	}, []string{"outcome"})

	DeliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webhookrelay",
		Subsystem: "worker",
		Name:      "delivery_attempts_total",
		Help:      "Delivery attempts grouped by outcome (success, failed).",
	}, []string{"outcome"})

	DeliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "webhookrelay",
		Subsystem: "worker",
		Name:      "delivery_attempt_duration_seconds",
		Help:      "Duration of a single outbound delivery attempt.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"outcome"})

	DeliveriesTerminal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webhookrelay",
		Subsystem: "worker",
		Name:      "deliveries_terminal_total",
		Help:      "Deliveries reaching a terminal state, grouped by state (success, failed).",
	}, []string{"state"})

	CacheOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webhookrelay",
		Subsystem: "cache",
		Name:      "subscription_ops_total",
		Help:      "Subscription cache operations grouped by result (hit, miss, set, delete, error).",
	}, []string{"result"})

	RetentionSwept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webhookrelay",
		Subsystem: "retention",
		Name:      "attempts_deleted_total",
		Help:      "Delivery attempt rows deleted by the retention sweeper.",
	}, []string{})
)

func init() {
	registry.MustRegister(
		IngestRequests,
		DeliveryAttempts,
		DeliveryLatency,
		DeliveriesTerminal,
		CacheOps,
		RetentionSwept,
	)
}

// Handler exposes the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveDelivery records one completed attempt's latency and outcome.
func ObserveDelivery(outcome string, d time.Duration) {
	DeliveryAttempts.WithLabelValues(outcome).Inc()
	DeliveryLatency.WithLabelValues(outcome).Observe(d.Seconds())
}
