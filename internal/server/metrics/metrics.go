// Package metrics declares the Prometheus collectors exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "toolmeter"

var (
	// LedgerConsumptions counts allowance consumption attempts by kind and result
	// (consumed, limit_exceeded, not_found, error).
	LedgerConsumptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "consumptions_total",
		Help:      "Allowance consumption attempts by kind and result.",
	}, []string{"kind", "result"})

	// LedgerResets counts administrative allowance resets.
	LedgerResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "resets_total",
		Help:      "Administrative allowance resets.",
	})

	// BillingOrders counts checkout order creations by outcome.
	BillingOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "orders_total",
		Help:      "Checkout orders by outcome.",
	}, []string{"outcome"})

	// BillingSettlements counts payment verifications by outcome.
	BillingSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "settlements_total",
		Help:      "Payment verification attempts by outcome.",
	}, []string{"outcome"})

	// ToolGenerations counts text generation requests by tool and outcome.
	ToolGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "generations_total",
		Help:      "Tool generation requests by tool and outcome.",
	}, []string{"tool", "outcome"})

	// CompletionDuration tracks latency of the completion service.
	CompletionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "completion_duration_seconds",
		Help:      "Completion service call duration in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	}, []string{"outcome"})

	// HTTPRequests counts API requests by route pattern, method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPDuration tracks API latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// DatabaseUp is 1 while the last database ping succeeded.
	DatabaseUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "up",
		Help:      "Whether the last database ping succeeded.",
	})
)
