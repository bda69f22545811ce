package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/taskni/llm-gateway/services/cache"
	"github.com/taskni/llm-gateway/services/gateway"
)

// Metrics is the Prometheus-backed attempt sink and cache instrumentation.
// It implements gateway.AttemptSink.
type Metrics struct {
	attempts       *prometheus.CounterVec
	attemptLatency *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics on the given registerer.
// statsFn, when non-nil, feeds the cache gauge family.
func NewMetrics(reg prometheus.Registerer, statsFn func() cache.Stats) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_attempts_total",
			Help: "Provider attempts by outcome and error class.",
		}, []string{"provider", "outcome", "error_class"}),
		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_attempt_duration_seconds",
			Help:    "Provider attempt latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
	}

	reg.MustRegister(m.attempts, m.attemptLatency)

	if statsFn != nil {
		registerCacheMetrics(reg, statsFn)
	}

	return m
}

// RecordAttempt implements gateway.AttemptSink
func (m *Metrics) RecordAttempt(record gateway.AttemptRecord) {
	m.attempts.WithLabelValues(record.Provider, string(record.Outcome), string(record.ErrorClass)).Inc()
	m.attemptLatency.WithLabelValues(record.Provider).Observe(record.Latency.Seconds())
}

func registerCacheMetrics(reg prometheus.Registerer, statsFn func() cache.Stats) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "response_cache_entries",
			Help: "Number of entries currently held by the response cache.",
		}, func() float64 { return float64(statsFn().Entries) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "response_cache_hits_total",
			Help: "Response cache hits.",
		}, func() float64 { return float64(statsFn().Hits) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "response_cache_misses_total",
			Help: "Response cache misses.",
		}, func() float64 { return float64(statsFn().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "response_cache_evictions_total",
			Help: "Response cache evictions (capacity and TTL).",
		}, func() float64 { return float64(statsFn().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "response_cache_hit_rate",
			Help: "Response cache hit rate since process start.",
		}, func() float64 { return statsFn().HitRate }),
	)
}

var _ gateway.AttemptSink = (*Metrics)(nil)
