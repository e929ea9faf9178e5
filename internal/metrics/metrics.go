// Package metrics holds the Prometheus collectors of discovery and log application.
// Every method is safe on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PoolsDiscovered    *prometheus.CounterVec
	DiscoveryFailures  prometheus.Counter
	FallbackSteps      *prometheus.CounterVec
	LogsApplied        *prometheus.CounterVec
	DecodeErrors       prometheus.Counter
	PathsAffected      prometheus.Counter
	LastProcessedBlock prometheus.Gauge
}

// New registers the collectors with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PoolsDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pools_discovered_total",
			Help:      "Pools built by discovery, by kind and sub-type",
		}, []string{"kind", "sub_type"}),
		DiscoveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_failures_total",
			Help:      "Pool fetches that produced no pool",
		}),
		FallbackSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_fallback_steps_total",
			Help:      "Fallback steps that resolved a discovery field",
		}, []string{"field", "step"}),
		LogsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_applied_total",
			Help:      "Logs applied to pools, by pool kind",
		}, []string{"kind"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Recognized logs that failed to apply",
		}),
		PathsAffected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paths_affected_total",
			Help:      "Paths passed to the update callback",
		}),
		LastProcessedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_block",
			Help:      "Last block whose logs were applied",
		}),
	}
}

func (m *Metrics) PoolDiscovered(kind, subType string) {
	if m == nil {
		return
	}
	m.PoolsDiscovered.WithLabelValues(kind, subType).Inc()
}

func (m *Metrics) DiscoveryFailed() {
	if m == nil {
		return
	}
	m.DiscoveryFailures.Inc()
}

// Fallback records which step resolved field, e.g. ("fee", "factory_map").
func (m *Metrics) Fallback(field, step string) {
	if m == nil {
		return
	}
	m.FallbackSteps.WithLabelValues(field, step).Inc()
}

func (m *Metrics) LogApplied(kind string) {
	if m == nil {
		return
	}
	m.LogsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) PathsUpdated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PathsAffected.Add(float64(n))
}

func (m *Metrics) SetLastProcessedBlock(block uint64) {
	if m == nil {
		return
	}
	m.LastProcessedBlock.Set(float64(block))
}
