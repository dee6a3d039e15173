package encoder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --------------------------------
// Metrics
// --------------------------------

var (
	compressionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ustreamerd_compression_latency_seconds",
			Help:    "Compression latency by resolved encoder type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	compressionStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ustreamerd_compression_status_total",
			Help: "Compression results by resolved encoder type and status",
		},
		[]string{"type", "status"},
	)
)
