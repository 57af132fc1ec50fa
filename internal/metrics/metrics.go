package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policyvoice",
		Name:      "llm_requests_total",
		Help:      "Completion calls by task and outcome.",
	}, []string{"task", "outcome"})

	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "policyvoice",
		Name:      "llm_request_duration_seconds",
		Help:      "Completion call latency by task, including transient retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})

	titlesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policyvoice",
		Name:      "titles_generated_total",
		Help:      "Generated titles by source (llm, synthesized, fallback, default).",
	}, []string{"source"})

	tagSuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policyvoice",
		Name:      "tag_suggestions_total",
		Help:      "Tag suggestion calls by outcome.",
	}, []string{"outcome"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policyvoice",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
)

// ObserveLLMRequest records the outcome and latency of one completion call.
func ObserveLLMRequest(task, outcome string, duration time.Duration) {
	llmRequestsTotal.WithLabelValues(task, outcome).Inc()
	llmRequestDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// CountTitleGenerated records which path produced a title.
func CountTitleGenerated(source string) {
	titlesGeneratedTotal.WithLabelValues(source).Inc()
}

// CountTagSuggestion records the outcome of a tag suggestion call.
func CountTagSuggestion(outcome string) {
	tagSuggestionsTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the default prometheus registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware counts requests per route template and status.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
