package httpserver

import (
	"context"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

// Run drives the refresher timer until ctx is cancelled (spec.md
// §4.6 Refresher). It fires at roughly twice DesiredFPS.
func (s *Server) Run(ctx context.Context) {
	interval := refresherInterval(s.cfg.DesiredFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tmp frame.Frame
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(&tmp)
		}
	}
}

func (s *Server) tick(tmp *frame.Frame) {
	streamUpdated := false
	frameUpdated := false

	if _, err := s.ring.ConsumerAcquire(0, tmp); err == nil {
		frameUpdated = s.expose(tmp)
		streamUpdated = true
	} else if s.exposeIsStale() {
		s.staleExpose()
		streamUpdated = true
		frameUpdated = true
	}

	s.sendStream(streamUpdated, frameUpdated)
	s.serviceSnapshots()
	s.maybeNotifyParent()
}

// sendStream advances every client's state machine per spec.md §4.6
// Queueing: a client is queued when it needs its first frame, or the
// tick produced an update, or the dual-final-frames policy fires for it.
func (s *Server) sendStream(streamUpdated, frameUpdated bool) {
	s.clientsMu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.Unlock()

	exposed := s.currentExposed()

	for _, c := range targets {
		queue := c.needFirstFrame() || frameUpdated
		dualFinal := false
		if !queue && streamUpdated && !frameUpdated && c.dualFinalFrames && c.updatedPrev() {
			queue = true
			dualFinal = true
		}
		c.setUpdatedPrev(frameUpdated)
		if queue {
			c.enqueue(&exposed, dualFinal)
		}
	}
}
