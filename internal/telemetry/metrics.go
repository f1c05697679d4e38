package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's prometheus collectors. A single instance is
// created at startup and shared by the gateway and pipeline.
type Metrics struct {
	ProviderAttempts  *prometheus.CounterVec
	ProviderFailures  *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	StageDuration     *prometheus.HistogramVec
	DegradedResponses prometheus.Counter
	ChainExhaustions  *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reasoning",
			Name:      "provider_attempts_total",
			Help:      "Provider call attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reasoning",
			Name:      "provider_failures_total",
			Help:      "Provider call failures by provider and error class.",
		}, []string{"provider", "class"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reasoning",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reasoning",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		DegradedResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reasoning",
			Name:      "degraded_responses_total",
			Help:      "Responses served by the templated fallback path.",
		}),
		ChainExhaustions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reasoning",
			Name:      "chain_exhaustions_total",
			Help:      "Requests that exhausted their full fallback chain.",
		}, []string{"tier"}),
	}

	reg.MustRegister(
		m.ProviderAttempts,
		m.ProviderFailures,
		m.BreakerState,
		m.StageDuration,
		m.DegradedResponses,
		m.ChainExhaustions,
	)
	return m
}

// SetBreakerState records a breaker state transition for a provider.
func (m *Metrics) SetBreakerState(provider, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(provider).Set(v)
}
