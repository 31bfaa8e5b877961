package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	transactionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rowdis",
			Subsystem: "engine",
			Name:      "transactions_open",
			Help:      "Number of open transactions.",
		})

	conflictCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rowdis",
			Subsystem: "engine",
			Name:      "conflict_total",
			Help:      "Counter of writes retried as delete then insert.",
		}, []string{"family"})

	allocatorRefillCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rowdis",
			Subsystem: "engine",
			Name:      "allocator_refill_total",
			Help:      "Counter of surrogate id blocks fetched from the store.",
		}, []string{"scope", "type"})

	namespaceCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rowdis",
			Subsystem: "engine",
			Name:      "namespace_cache_total",
			Help:      "Counter of namespace cache lookups.",
		}, []string{"result"})

	pipelineKeysCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rowdis",
			Subsystem: "pipeline",
			Name:      "keys_total",
			Help:      "Counter of keys read by multi-key requests by outcome.",
		}, []string{"outcome"})

	pipelineBytesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rowdis",
			Subsystem: "pipeline",
			Name:      "outstanding_bytes",
			Help:      "Extension row bytes requested and not yet received.",
		})

	consistencyFaultCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rowdis",
			Subsystem: "pipeline",
			Name:      "consistency_fault_total",
			Help:      "Counter of multi-key requests which leaked transactions.",
		})
)

func init() {
	prometheus.MustRegister(transactionsOpen)
	prometheus.MustRegister(conflictCounter)
	prometheus.MustRegister(allocatorRefillCounter)
	prometheus.MustRegister(namespaceCounter)
	prometheus.MustRegister(pipelineKeysCounter)
	prometheus.MustRegister(pipelineBytesGauge)
	prometheus.MustRegister(consistencyFaultCounter)
}
