package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var FulfillmentAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "esimcore",
		Subsystem: "fulfillment",
		Name:      "attempts_total",
		Help:      "Total number of provider fulfillment attempts by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

var CascadeDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "esimcore",
		Subsystem: "cascade",
		Name:      "duration_seconds",
		Help:      "Time spent running the provider cascade, by final result.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	},
	[]string{"result"},
)

var BreakerPhase = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "esimcore",
		Subsystem: "breaker",
		Name:      "phase",
		Help:      "Circuit breaker phase per provider: 0=closed, 1=half_open, 2=open.",
	},
	[]string{"provider"},
)

var ManualFulfillmentsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "esimcore",
		Subsystem: "fulfillment",
		Name:      "manual_total",
		Help:      "Total number of orders routed to manual fulfillment.",
	},
)

var InquirySyncTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "esimcore",
		Subsystem: "inquiry",
		Name:      "sync_total",
		Help:      "Total number of inquiry sync runs by channel and outcome.",
	},
	[]string{"channel", "outcome"},
)

var TokenRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "esimcore",
		Subsystem: "credential",
		Name:      "token_refresh_total",
		Help:      "Total number of token refreshes by adapter and outcome.",
	},
	[]string{"adapter", "outcome"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "esimcore",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by method, route, and status code.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// All returns all esimcore-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		FulfillmentAttemptsTotal,
		CascadeDuration,
		BreakerPhase,
		ManualFulfillmentsTotal,
		InquirySyncTotal,
		TokenRefreshTotal,
		HTTPRequestDuration,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// plus every esimcore metric.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
