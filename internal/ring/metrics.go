package ring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --------------------------------
// Metrics
// --------------------------------

var (
	ringOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_ring_overflow_total",
		Help: "Frames overwritten by the producer before the consumer retired them via ConsumerRelease",
	})

	ringPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_ring_published_total",
		Help: "Frames published into the ring",
	})
)
