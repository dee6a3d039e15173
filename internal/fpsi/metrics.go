package fpsi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --------------------------------
// Metrics
// --------------------------------

// framesNoted counts NoteFrame calls across every Instrument in the
// process. Per-instrument series aren't exported here: server-wide FPS
// already gets its own gauge in internal/httpserver, and per-client
// instruments are created and discarded too often to label safely.
var framesNoted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ustreamerd_fpsi_frames_noted_total",
	Help: "Frame events recorded across all FPS instruments",
})
