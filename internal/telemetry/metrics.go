package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across the gateway.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pushgate",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// NotificationsSentTotal counts successfully dispatched per-token sends by platform.
var NotificationsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pushgate",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total number of per-token notification sends that the provider accepted.",
	},
	[]string{"platform"},
)

// NotificationsFailedTotal counts per-token sends the provider rejected.
var NotificationsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pushgate",
		Subsystem: "notify",
		Name:      "failed_total",
		Help:      "Total number of per-token notification sends the provider rejected.",
	},
	[]string{"platform"},
)

// InvalidTokensTotal counts tokens classified as permanently undeliverable.
var InvalidTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pushgate",
		Subsystem: "notify",
		Name:      "invalid_tokens_total",
		Help:      "Total number of device tokens classified as permanently invalid.",
	},
	[]string{"platform"},
)

// NonceRejectionsTotal counts requests rejected at the admission stage because their nonce was already used.
var NonceRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pushgate",
		Subsystem: "admission",
		Name:      "nonce_rejections_total",
		Help:      "Total number of requests rejected for nonce reuse.",
	},
)

// RateLimitRejectionsTotal counts requests rejected by the admission rate limiter.
var RateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pushgate",
		Subsystem: "admission",
		Name:      "rate_limit_rejections_total",
		Help:      "Total number of requests rejected by the fixed-window rate limiter.",
	},
)

// APNsListenersInUse reports current in-flight request occupancy per cached
// APNs provider, sampled periodically against each provider's semaphore.
var APNsListenersInUse = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pushgate",
		Subsystem: "apns",
		Name:      "listeners_in_use",
		Help:      "Concurrent in-flight APNs HTTP/2 requests per cached tenant provider.",
	},
	[]string{"app_id"},
)

// ProviderCacheSize reports the number of cached provider instances for each platform.
var ProviderCacheSize = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pushgate",
		Subsystem: "providers",
		Name:      "cache_size",
		Help:      "Number of cached per-tenant provider instances.",
	},
	[]string{"platform"},
)

// All returns the gateway's own metrics for registration alongside the shared
// HTTP duration histogram.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		NotificationsSentTotal,
		NotificationsFailedTotal,
		InvalidTokensTotal,
		NonceRejectionsTotal,
		RateLimitRejectionsTotal,
		APNsListenersInUse,
		ProviderCacheSize,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP duration histogram, and any additional collectors passed in.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
