// Package metrics defines the Prometheus collectors exported by the
// ingestor.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "product_ingestor"

// Batch results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total records received per topic.",
		},
		[]string{"topic"},
	)
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total batches processed by result.",
		},
		[]string{"result"},
	)
	ReceiveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Total errors returned by the stream processor.",
		},
	)
	PersistLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_latency_seconds",
			Help:      "Latency of batch persistence in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	LastOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_offset",
			Help:      "Last received offset per topic/partition.",
		},
		[]string{"topic", "partition"},
	)
	InflightBatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_batches",
			Help:      "Batches dispatched to the store and not yet completed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsTotal,
		BatchesTotal,
		ReceiveErrorsTotal,
		PersistLatency,
		LastOffset,
		InflightBatches,
	)
}
