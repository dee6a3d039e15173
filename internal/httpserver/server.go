// Package httpserver implements the server core of spec.md §4.6:
// fixed routing, an event-loop-style refresher that drains the
// encoded ring on a timer, and a per-client streaming state machine
// built on net/http's Hijacker rather than a literal single-threaded
// reactor (SPEC_FULL.md §9 design note -- the teacher's
// internal/mjpeg.Handler is the direct model for the hijack+manual
// header write idiom used throughout this package; the multipart
// framing is written by hand, not through mime/multipart.Writer).
package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/fpsi"
	"github.com/warpcomdev/ustreamerd/internal/frame"
	"github.com/warpcomdev/ustreamerd/internal/ring"
	"github.com/warpcomdev/ustreamerd/internal/servicelog"
)

// Config holds the knobs spec.md §4.6 names explicitly.
type Config struct {
	DesiredFPS     int
	DropSameFrames int
	AuthToken      string // empty disables auth
	TCPNoDelay     bool
	CORSOrigin     string // default "*"

	AdvanceHeaders   bool
	ExtraHeaders     bool
	DualFinalFrames  bool
	ZeroData         bool
	SnapshotTimeout  time.Duration
}

// ParentNotifier is called when the exposed frame's (online, width,
// height) changes -- spec.md's "signal the parent process" step.
type ParentNotifier func(online bool, width, height uint32)

// Server owns the client registry, the exposed-frame slot, and the
// refresher loop that drives both from the encoded ring.
type Server struct {
	cfg    Config
	ring   *ring.Ring
	log    servicelog.Logger
	notify ParentNotifier

	fpsi *fpsi.Instrument

	mu      sync.Mutex
	exposed exposedFrame

	clientsMu sync.Mutex
	clients   map[uint64]*client
	nextID    atomic.Uint64

	snapMu   sync.Mutex
	snapshots []*snapshotRequest

	lastNotifyOnline bool
	lastNotifyW      uint32
	lastNotifyH      uint32

	lastRequestTS atomic.Int64
}

// NewServer builds a Server reading frames from ringBuf.
func NewServer(cfg Config, ringBuf *ring.Ring, notify ParentNotifier, log servicelog.Logger) *Server {
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.SnapshotTimeout == 0 {
		cfg.SnapshotTimeout = 2 * time.Second
	}
	return &Server{
		cfg:     cfg,
		ring:    ringBuf,
		log:     log,
		notify:  notify,
		fpsi:    fpsi.New(),
		clients: make(map[uint64]*client),
	}
}

// NoteRequest records the time of the latest served request, readable
// through LastRequestTS. The orchestrator's ExitOnNoClients policy uses
// its own timestamp (Orchestrator.NoteRequest), not this one.
func (s *Server) NoteRequest() {
	s.lastRequestTS.Store(time.Now().UnixNano())
}

// LastRequestTS returns the unix-nano timestamp of the last served request.
func (s *Server) LastRequestTS() int64 {
	return s.lastRequestTS.Load()
}

// HasClients reports whether any streaming client is currently attached.
func (s *Server) HasClients() bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients) > 0
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.NoteRequest()

	if r.Method == http.MethodOptions {
		s.writeCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.checkAuth(w, r) {
		return
	}
	if r.Method == http.MethodHead {
		s.writeCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	path := s.resolveMJPGStreamerCompat(r)
	switch path {
	case "/", "":
		s.handleIndex(w, r)
	case "/favicon.ico":
		w.WriteHeader(http.StatusNoContent)
	case "/state":
		s.handleState(w, r)
	case "/snapshot":
		s.handleSnapshot(w, r)
	case "/stream":
		s.handleStream(w, r)
	default:
		http.NotFound(w, r)
	}
}

// resolveMJPGStreamerCompat maps the legacy MJPG-Streamer
// "?action=snapshot|stream" query convention, usable on any path, to
// our fixed routes.
func (s *Server) resolveMJPGStreamerCompat(r *http.Request) string {
	switch strings.ToLower(r.URL.Query().Get("action")) {
	case "snapshot":
		return "/snapshot"
	case "stream":
		return "/stream"
	default:
		return r.URL.Path
	}
}

func (s *Server) writeCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization")
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	if r.Header.Get("Authorization") == s.cfg.AuthToken {
		return true
	}
	w.Header().Set("WWW-Authenticate", "Basic")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeCORS(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><img src=\"/stream\"></body></html>"))
}

func clampFPS(fps int) int {
	if fps < 1 {
		return 1
	}
	return fps
}

func refresherInterval(desiredFPS int) time.Duration {
	micros := 1_000_000 / (2 * clampFPS(desiredFPS))
	return time.Duration(micros) * time.Microsecond
}

func formatContentType(f frame.Format) string {
	switch f {
	case frame.H264:
		return "video/h264"
	case frame.H265:
		return "video/hevc"
	default:
		return "image/jpeg"
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
