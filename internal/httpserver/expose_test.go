package httpserver

import (
	"testing"

	"github.com/warpcomdev/ustreamerd/internal/frame"
	"github.com/warpcomdev/ustreamerd/internal/ring"
)

func newExposeServer(dropSameFrames int) *Server {
	r := ring.New(2, 16)
	return NewServer(Config{DesiredFPS: 10, DropSameFrames: dropSameFrames}, r, nil, nil)
}

func TestExposeZeroLengthFrameOnlyUpdatesOnlineFlag(t *testing.T) {
	s := newExposeServer(0)
	f := &frame.Frame{Used: 0, Online: true}
	updated := s.expose(f)
	if updated {
		t.Fatalf("a zero-length frame must never report a content update")
	}
	if !s.currentExposed().Online {
		t.Fatalf("expected the online flag to have been applied")
	}
}

func TestExposeDropsIdenticalFramesUpToBound(t *testing.T) {
	s := newExposeServer(3)
	f := &frame.Frame{Used: 4, Data: []byte{1, 2, 3, 4}, Width: 2, Height: 2, Online: true}

	if !s.expose(f) {
		t.Fatalf("expected the first frame to always update")
	}
	if s.expose(f) {
		t.Fatalf("expected the 1st identical frame to be dropped (dropped=0 < bound=3)")
	}
	if s.expose(f) {
		t.Fatalf("expected the 2nd identical frame to be dropped (dropped=1 < bound=3)")
	}
	if s.expose(f) {
		t.Fatalf("expected the 3rd identical frame to be dropped (dropped=2 < bound=3)")
	}
	if !s.expose(f) {
		t.Fatalf("expected the 4th identical frame to force an update once dropped reaches the bound")
	}
}

func TestExposeAlwaysUpdatesOnGeometryChange(t *testing.T) {
	s := newExposeServer(100)
	a := &frame.Frame{Used: 2, Data: []byte{1, 2}, Width: 2, Height: 1, Online: true}
	b := &frame.Frame{Used: 2, Data: []byte{1, 2}, Width: 4, Height: 1, Online: true}

	if !s.expose(a) {
		t.Fatalf("expected the first frame to update")
	}
	if !s.expose(b) {
		t.Fatalf("expected a geometry change to force an update even with identical bytes")
	}
}

func TestExposeDoesNotDropWhileOffline(t *testing.T) {
	s := newExposeServer(100)
	f := &frame.Frame{Used: 2, Data: []byte{9, 9}, Width: 2, Height: 1, Online: false}

	if !s.expose(f) {
		t.Fatalf("expected the first frame to update")
	}
	if !s.expose(f) {
		t.Fatalf("expected repeated offline frames not to be dropped (drop-same-frames only applies while online)")
	}
}
