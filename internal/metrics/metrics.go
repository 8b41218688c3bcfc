package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_gateway_route_requests_total",
			Help: "Total routed requests by terminal outcome",
		},
		[]string{"outcome"},
	)

	RouteAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_gateway_route_attempts_total",
			Help: "Per-candidate invocation attempts by model and result",
		},
		[]string{"model", "result"},
	)

	FallbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "model_gateway_fallback_depth",
			Help:    "Number of candidates tried before a request resolved",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "model_gateway_provider_latency_seconds",
			Help: "Upstream provider call latency in seconds",
		},
		[]string{"family"},
	)

	CreditsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_gateway_credits_reserved_total",
			Help: "Credits reserved against accounts",
		},
	)

	CreditsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_gateway_credits_committed_total",
			Help: "Credits settled after successful invocations",
		},
	)

	CreditsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_gateway_credits_released_total",
			Help: "Credits returned after abandoned invocations",
		},
	)

	InsufficientCredits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_gateway_insufficient_credits_total",
			Help: "Requests rejected for lack of credits",
		},
	)
)
