package httpserver

import (
	"time"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

// exposedFrame is the server's single-owner "current frame" slot
// (spec.md §3 Exposed frame). Only the refresher writes it; every
// client goroutine only reads under Server.mu.
type exposedFrame struct {
	frame.Frame

	dropped       int
	exposeBeginTS float64
	exposeCmpTS   float64
	exposeEndTS   float64

	notifyLastOnline bool
	notifyLastWidth  uint32
	notifyLastHeight uint32

	lastExposeAt time.Time
}

// expose applies spec.md §4.6's Expose policy and reports whether
// clients should be notified of a frame update (not just an
// online-flag touch).
func (s *Server) expose(f *frame.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.exposed.exposeBeginTS = nowSeconds()

	if f.Used == 0 {
		// A zero-length frame only updates the online flag.
		s.exposed.Online = f.Online
		s.exposed.exposeEndTS = nowSeconds()
		s.exposed.lastExposeAt = now
		return false
	}

	if s.cfg.DropSameFrames > 0 && f.Online && frame.Equal(&s.exposed.Frame, f) {
		if s.exposed.dropped < s.cfg.DropSameFrames {
			s.exposed.dropped++
			s.exposed.exposeEndTS = nowSeconds()
			s.exposed.lastExposeAt = now
			framesDropped.Inc()
			return false
		}
	}

	s.exposed.exposeCmpTS = nowSeconds()
	s.exposed.Frame.CopyFrom(f)
	s.exposed.dropped = 0
	s.exposed.exposeEndTS = nowSeconds()
	s.exposed.lastExposeAt = now
	s.fpsi.NoteFrame(f.Online, f.Width, f.Height)
	serverFPS.Set(s.fpsi.FPS())
	return true
}

// staleExpose re-exposes the current frame unchanged, used by the
// refresher when the ring had nothing new for over a second, to keep
// idle clients alive.
func (s *Server) staleExpose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposed.exposeBeginTS = nowSeconds()
	s.exposed.exposeCmpTS = s.exposed.exposeBeginTS
	s.exposed.exposeEndTS = s.exposed.exposeBeginTS
	s.exposed.lastExposeAt = time.Now()
}

func (s *Server) exposeIsStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.exposed.lastExposeAt) > time.Second
}

func (s *Server) currentExposed() exposedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.exposed
	cp.Data = append([]byte(nil), s.exposed.Data[:s.exposed.Used]...)
	return cp
}

func (s *Server) maybeNotifyParent() {
	s.mu.Lock()
	online, w, h := s.exposed.Online, s.exposed.Width, s.exposed.Height
	s.mu.Unlock()

	if online == s.lastNotifyOnline && w == s.lastNotifyW && h == s.lastNotifyH {
		return
	}
	s.lastNotifyOnline, s.lastNotifyW, s.lastNotifyH = online, w, h
	if s.notify != nil {
		s.notify(online, w, h)
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
