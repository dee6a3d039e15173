package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/ring"
)

func newTestServer(cfg Config) *Server {
	r := ring.New(2, 16)
	return NewServer(cfg, r, nil, nil)
}

func TestServeHTTPRejectsUnknownPath(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestServeHTTPOptionsIsCORSPreflight(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10})
	req := httptest.NewRequest(http.MethodOptions, "/stream", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected default CORS origin '*', got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestServeHTTPRejectsPostMethod(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10})
	req := httptest.NewRequest(http.MethodPost, "/state", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestCheckAuthRejectsMismatch(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10, AuthToken: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Basic" {
		t.Fatalf("expected WWW-Authenticate: Basic, got %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestCheckAuthAcceptsMatch(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10, AuthToken: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestMJPGStreamerCompatQueryParam(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10, SnapshotTimeout: 10 * time.Millisecond})
	req := httptest.NewRequest(http.MethodGet, "/anything?action=snapshot", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("expected the snapshot route via ?action=snapshot, got Content-Type %q", ct)
	}
}

func TestHandleStateReportsClientCount(t *testing.T) {
	s := newTestServer(Config{DesiredFPS: 10})
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Clients) != 0 {
		t.Fatalf("expected no clients attached, got %d", len(resp.Clients))
	}
}

func TestRefresherIntervalHalvesDesiredPeriod(t *testing.T) {
	got := refresherInterval(25)
	want := refresherInterval(50) * 2
	if got != want {
		t.Fatalf("expected doubling desired FPS to halve the interval: got %v, want %v", got, want)
	}
}

func TestClampFPSNeverBelowOne(t *testing.T) {
	if clampFPS(0) != 1 || clampFPS(-5) != 1 {
		t.Fatalf("expected clampFPS to floor at 1")
	}
	if clampFPS(30) != 30 {
		t.Fatalf("expected clampFPS to pass through positive values")
	}
}
