package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes Prometheus metrics for the provider layer, the driver
// loop, and the tool/cache subsystems it drives.
type Collector struct {
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	providerTokensUsed      *prometheus.CounterVec

	runExecutionsTotal   *prometheus.CounterVec
	stepExecutionsTotal  *prometheus.CounterVec
	stepExecutionDuration *prometheus.HistogramVec

	toolInvocationsTotal   *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers one set of metrics under namespace and returns the
// collector used to record them. Call once per process; promauto panics on
// duplicate registration.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of model provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Model provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.providerTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.runExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_executions_total",
			Help:      "Total number of driver.Run invocations by terminal state",
		},
		[]string{"agent_style", "state"},
	)

	c.stepExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of action steps executed",
		},
		[]string{"agent_style", "outcome"}, // outcome: ok, recoverable_error, fatal_error
	)

	c.stepExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_execution_duration_seconds",
			Help:      "Action step execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_style"},
	)

	c.toolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	c.toolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of provider response cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of provider response cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordProviderRequest records one Generate/GenerateStream call.
func (c *Collector) RecordProviderRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.providerRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.providerTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.providerTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordRun records the terminal state of one driver.Run invocation.
func (c *Collector) RecordRun(agentStyle, state string) {
	c.runExecutionsTotal.WithLabelValues(agentStyle, state).Inc()
}

// RecordStep records one action step's outcome and wall-clock duration.
func (c *Collector) RecordStep(agentStyle, outcome string, duration time.Duration) {
	c.stepExecutionsTotal.WithLabelValues(agentStyle, outcome).Inc()
	c.stepExecutionDuration.WithLabelValues(agentStyle).Observe(duration.Seconds())
}

// RecordToolInvocation records one toolkit.Invoke call.
func (c *Collector) RecordToolInvocation(tool, status string, duration time.Duration) {
	c.toolInvocationsTotal.WithLabelValues(tool, status).Inc()
	c.toolInvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCacheHit records a provider response cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a provider response cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}
