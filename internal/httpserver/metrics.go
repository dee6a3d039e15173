package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --------------------------------
// Metrics
// --------------------------------

var (
	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ustreamerd_http_clients_connected",
		Help: "Currently attached /stream clients",
	})

	clientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_http_clients_total",
		Help: "Accumulated /stream client connections",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_http_frames_dropped_total",
		Help: "Frames deduplicated by the drop-same-frames policy",
	})

	serverFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ustreamerd_http_server_fps",
		Help: "Rolling frames-per-second exposed to clients",
	})
)
