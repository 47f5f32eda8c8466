package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PushSubscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_subscriptions_total",
			Help: "Total number of subscribe attempts.",
		},
		[]string{"result"},
	)

	PushSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_subscriptions_active",
			Help: "Number of stored push subscriptions.",
		},
	)

	PushDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Total number of per-subscription delivery attempts.",
		},
		[]string{"outcome"},
	)

	PushSubscriptionsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_subscriptions_pruned_total",
			Help: "Total number of subscriptions removed by expiry or idle sweep.",
		},
		[]string{"reason"},
	)

	TriggerAuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_trigger_auth_attempts_total",
			Help: "Total number of authentication attempts on trigger endpoints.",
		},
		[]string{"method", "result"},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		PushSubscriptionsTotal,
		PushSubscriptionsActive,
		PushDeliveriesTotal,
		PushSubscriptionsPrunedTotal,
		TriggerAuthAttemptsTotal,
	)
}
