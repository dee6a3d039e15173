package memsink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --------------------------------
// Metrics
// --------------------------------

var (
	sinkPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ustreamerd_sink_published_total",
			Help: "Frames published into a memory sink",
		},
		[]string{"sink"},
	)

	sinkSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ustreamerd_sink_skipped_total",
			Help: "Publishes skipped because a consumer held the sink's lock",
		},
		[]string{"sink"},
	)

	sinkClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ustreamerd_sink_has_clients",
			Help: "Whether the sink currently believes a consumer is attached (0/1)",
		},
		[]string{"sink"},
	)
)
