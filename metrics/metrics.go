// Package metrics exposes the engine's operational counters over a
// prometheus registry. The set is instance-scoped: a node creates one
// Metrics and threads it into the components that report, so tests and
// multi-node fakenets never share collector state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the engine reports to.
type Metrics struct {
	registry *prometheus.Registry

	// BlockRejects counts DAG admission rejections by reason.
	BlockRejects *prometheus.CounterVec

	// SkewRejects counts peer time samples dropped by the clock's outlier
	// filter.
	SkewRejects prometheus.Counter

	// FinalizedRounds and AbortedRounds count round outcomes.
	FinalizedRounds prometheus.Counter
	AbortedRounds   prometheus.Counter

	// EmissionMicro accumulates minted supply; BurnedFeeMicro accumulates
	// fees destroyed by the recycling rule.
	EmissionMicro  prometheus.Counter
	BurnedFeeMicro prometheus.Counter

	// IssuedSupplyMicro mirrors the engine's view of total issued supply.
	IssuedSupplyMicro prometheus.Gauge
}

// New builds the collector set on a fresh registry, including the standard
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BlockRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dlc",
			Subsystem: "dag",
			Name:      "block_rejects_total",
			Help:      "Blocks refused at DAG admission, by reason.",
		}, []string{"reason"}),
		SkewRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dlc",
			Subsystem: "clock",
			Name:      "skew_rejects_total",
			Help:      "Peer time samples dropped as skew outliers.",
		}),
		FinalizedRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dlc",
			Subsystem: "round",
			Name:      "finalized_total",
			Help:      "Rounds that reached a certificate.",
		}),
		AbortedRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dlc",
			Subsystem: "round",
			Name:      "aborted_total",
			Help:      "Rounds that expired or were cancelled before quorum.",
		}),
		EmissionMicro: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dlc",
			Subsystem: "economy",
			Name:      "emission_micro_total",
			Help:      "Total minted supply in micro units.",
		}),
		BurnedFeeMicro: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dlc",
			Subsystem: "economy",
			Name:      "burned_fee_micro_total",
			Help:      "Fees destroyed by the recycling rule, in micro units.",
		}),
		IssuedSupplyMicro: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dlc",
			Subsystem: "economy",
			Name:      "issued_supply_micro",
			Help:      "Issued supply as seen by the round executor.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BlockRejects,
		m.SkewRejects,
		m.FinalizedRounds,
		m.AbortedRounds,
		m.EmissionMicro,
		m.BurnedFeeMicro,
		m.IssuedSupplyMicro,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
