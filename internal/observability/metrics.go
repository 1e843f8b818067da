package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the gateway. All methods
// are nil-safe so components can run without metrics in tests.
type Metrics struct {
	attempts          *prometheus.CounterVec
	attemptDuration   *prometheus.HistogramVec
	providerStatus    *prometheus.GaugeVec
	fallbackExhausted prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	costTotal         *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_provider_attempts_total",
				Help: "Provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),

		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hearth_provider_attempt_duration_seconds",
				Help:    "Latency of individual provider attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		providerStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hearth_provider_status",
				Help: "Current provider status (1 for the active status label)",
			},
			[]string{"provider", "status"},
		),

		fallbackExhausted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_fallback_exhausted_total",
				Help: "Requests for which every candidate failed or was skipped",
			},
		),

		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_cache_hits_total",
				Help: "Response cache hits",
			},
		),

		cacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_cache_misses_total",
				Help: "Response cache misses",
			},
		),

		costTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_cost_usd_total",
				Help: "Cumulative generation cost in USD",
			},
			[]string{"provider"},
		),
	}
}

// RecordAttempt records one provider attempt and its outcome label.
func (m *Metrics) RecordAttempt(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcome).Inc()
	m.attemptDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordCost adds to the cumulative cost counter for a provider.
func (m *Metrics) RecordCost(provider string, cost float64) {
	if m == nil || cost <= 0 {
		return
	}
	m.costTotal.WithLabelValues(provider).Add(cost)
}

// SetProviderStatus flips the status gauge for a provider.
func (m *Metrics) SetProviderStatus(provider, status string) {
	if m == nil {
		return
	}
	for _, s := range []string{"available", "rate_limited", "errored", "disabled"} {
		value := 0.0
		if s == status {
			value = 1.0
		}
		m.providerStatus.WithLabelValues(provider, s).Set(value)
	}
}

// RecordFallbackExhausted counts a total-outage request.
func (m *Metrics) RecordFallbackExhausted() {
	if m == nil {
		return
	}
	m.fallbackExhausted.Inc()
}

// RecordCacheHit counts a response cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss counts a response cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
