// Package capture defines the raw-frame source interface the
// orchestrator pulls from, plus a synthetic FakeSource used for local
// development and tests in place of a real V4L2/vendor capture
// device (out of scope per spec.md §1). Grounded on the teacher's
// dirsource.Source: a ticker-paced Next(ctx, dst) loop feeding a
// shared destination buffer.
package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

// Source is anything the orchestrator can pull raw frames from.
type Source interface {
	Name() string
	Start() error
	Stop()
	// Next blocks until the next frame is ready or ctx is done, filling
	// dst in place. online reports whether the underlying device was
	// live when the frame was produced.
	Next(ctx context.Context, dst *frame.Frame) (online bool, err error)
}

// FakeSource emits a synthetic YUYV test pattern at a fixed rate. Its
// Offline toggle simulates signal loss for exercising the
// orchestrator's blank-frame substitution path.
type FakeSource struct {
	width, height uint32
	rate          *time.Ticker
	interval      time.Duration
	offline       atomic.Bool
	frameN        uint64
}

// NewFakeSource builds a generator for width x height YUYV frames at fps.
func NewFakeSource(width, height uint32, fps int) *FakeSource {
	if fps < 1 {
		fps = 1
	}
	return &FakeSource{
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(fps),
	}
}

func (s *FakeSource) Name() string { return "fake" }

func (s *FakeSource) Start() error {
	s.rate = time.NewTicker(s.interval)
	return nil
}

func (s *FakeSource) Stop() {
	if s.rate != nil {
		s.rate.Stop()
	}
}

// SetOffline flips whether subsequent frames report online=false,
// without stopping the ticker -- the capture device is still
// "running," it just has no signal.
func (s *FakeSource) SetOffline(offline bool) {
	s.offline.Store(offline)
}

func (s *FakeSource) Next(ctx context.Context, dst *frame.Frame) (bool, error) {
	select {
	case <-s.rate.C:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	stride := s.width * 2
	size := int(stride * s.height)
	dst.Grow(size)

	n := atomic.AddUint64(&s.frameN, 1)
	shade := byte(n % 256)
	for i := 0; i < size; i += 2 {
		dst.Data[i] = shade
		dst.Data[i+1] = 0x80
	}

	dst.Used = size
	dst.Width = s.width
	dst.Height = s.height
	dst.Stride = stride
	dst.Format = frame.RawYUYV
	dst.Key = false
	dst.GOP = 0
	online := !s.offline.Load()
	dst.Online = online
	now := float64(time.Now().UnixNano()) / 1e9
	dst.GrabTS = now
	dst.EncodeBeginTS = 0
	dst.EncodeEndTS = 0
	return online, nil
}
