// Package metrics exposes Prometheus collectors for the dataflow engine:
// record and batch throughput, exchange traffic, channel depth, view sizes,
// and ingress backpressure. Collectors live in a dedicated registry so
// embedding applications can scrape or ignore them wholesale.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the engine's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "k9db",
			Subsystem: "dataflow",
			Name:      "records_total",
			Help:      "Records processed by partition workers, by sign.",
		},
		[]string{"flow", "partition", "sign"},
	)

	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "k9db",
			Subsystem: "dataflow",
			Name:      "batches_total",
			Help:      "Batches processed by partition workers.",
		},
		[]string{"flow", "partition"},
	)

	exchangeForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "k9db",
			Subsystem: "dataflow",
			Name:      "exchange_forwards_total",
			Help:      "Records re-hashed to a peer partition by exchange operators.",
		},
		[]string{"flow", "partition"},
	)

	channelDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "k9db",
			Subsystem: "dataflow",
			Name:      "channel_depth",
			Help:      "Messages pending in a partition's channels.",
		},
		[]string{"partition"},
	)

	matviewSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "k9db",
			Subsystem: "dataflow",
			Name:      "matview_size",
			Help:      "Records held by a materialized view partition.",
		},
		[]string{"flow", "partition"},
	)

	ingressBackpressure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "k9db",
			Subsystem: "dataflow",
			Name:      "ingress_backpressure_total",
			Help:      "Backoff waits caused by a full input channel.",
		},
		[]string{"table"},
	)
)

func init() {
	Registry.MustRegister(
		recordsTotal,
		batchesTotal,
		exchangeForwards,
		channelDepth,
		matviewSize,
		ingressBackpressure,
	)
}

func part(p uint16) string { return strconv.FormatUint(uint64(p), 10) }

// RecordsProcessed counts records entering a partition worker.
func RecordsProcessed(flow string, partition uint16, positive bool, n int) {
	sign := "positive"
	if !positive {
		sign = "negative"
	}
	recordsTotal.WithLabelValues(flow, part(partition), sign).Add(float64(n))
}

// BatchProcessed counts one worker batch.
func BatchProcessed(flow string, partition uint16) {
	batchesTotal.WithLabelValues(flow, part(partition)).Inc()
}

// ExchangeForwarded counts records forwarded to peer partitions.
func ExchangeForwarded(flow string, partition uint16, n int) {
	exchangeForwards.WithLabelValues(flow, part(partition)).Add(float64(n))
}

// SetChannelDepth records the pending message count of a partition.
func SetChannelDepth(partition uint16, depth int) {
	channelDepth.WithLabelValues(part(partition)).Set(float64(depth))
}

// SetMatViewSize records the current size of a matview partition.
func SetMatViewSize(flow string, partition uint16, size int) {
	matviewSize.WithLabelValues(flow, part(partition)).Set(float64(size))
}

// IngressBackpressure counts one backoff wait on a full input channel.
func IngressBackpressure(table string) {
	ingressBackpressure.WithLabelValues(table).Inc()
}
