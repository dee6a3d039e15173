package httpserver

import (
	"net/http"
	"time"
)

// snapshotRequest is serviced by the refresher once the exposed frame
// becomes fresher than `since`, or at `deadline`, whichever comes
// first (spec.md §4.6 step 5: "pending snapshot requests whose data
// is fresh or whose deadline has elapsed").
type snapshotRequest struct {
	since    float64
	deadline time.Time
	result   chan exposedFrame
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeCORS(w)

	cur := s.currentExposed()
	req := &snapshotRequest{
		since:    cur.exposeBeginTS,
		deadline: time.Now().Add(s.cfg.SnapshotTimeout),
		result:   make(chan exposedFrame, 1),
	}

	s.snapMu.Lock()
	s.snapshots = append(s.snapshots, req)
	s.snapMu.Unlock()

	var out exposedFrame
	select {
	case out = <-req.result:
	case <-time.After(s.cfg.SnapshotTimeout + 100*time.Millisecond):
		out = s.currentExposed()
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(out.Slice())
}

// serviceSnapshots is called once per refresher tick.
func (s *Server) serviceSnapshots() {
	s.snapMu.Lock()
	pending := s.snapshots
	s.snapshots = nil
	s.snapMu.Unlock()

	if len(pending) == 0 {
		return
	}

	cur := s.currentExposed()
	now := time.Now()
	var keep []*snapshotRequest
	for _, req := range pending {
		if cur.exposeBeginTS > req.since || now.After(req.deadline) {
			select {
			case req.result <- cur:
			default:
			}
			continue
		}
		keep = append(keep, req)
	}

	if len(keep) > 0 {
		s.snapMu.Lock()
		s.snapshots = append(keep, s.snapshots...)
		s.snapMu.Unlock()
	}
}
