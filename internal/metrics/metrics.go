package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aether_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	UsageConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_usage_consumed_total",
			Help: "Usage consumption attempts by resource and outcome.",
		},
		[]string{"resource", "allowed"},
	)

	InsightsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_insights_generated_total",
			Help: "Insight generation results by category and outcome.",
		},
		[]string{"category", "outcome"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aether_llm_request_duration_seconds",
			Help:    "Upstream model call duration in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UsageConsumedTotal,
		InsightsGeneratedTotal,
		LLMRequestDuration,
	)
}
