package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/blank"
	"github.com/warpcomdev/ustreamerd/internal/frame"
	"github.com/warpcomdev/ustreamerd/internal/ring"
	"github.com/warpcomdev/ustreamerd/internal/workerpool"
)

type fakeSink struct {
	checkResult bool
	wantKey     bool
	puts        int
}

func (s *fakeSink) ServerCheck(*frame.Frame) bool { return s.checkResult }
func (s *fakeSink) ServerPut(_ *frame.Frame, keyRequested *bool) error {
	s.puts++
	if keyRequested != nil {
		*keyRequested = s.wantKey
	}
	return nil
}
func (s *fakeSink) HasClients() bool { return s.checkResult }

type fakeSource struct {
	online bool
	calls  int
	width  uint32
	height uint32
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) Start() error { return nil }
func (f *fakeSource) Stop()        {}
func (f *fakeSource) Next(ctx context.Context, dst *frame.Frame) (bool, error) {
	f.calls++
	dst.Grow(4)
	dst.Used = 4
	dst.Width = f.width
	dst.Height = f.height
	dst.Format = frame.RawYUYV
	dst.Online = f.online
	return f.online, nil
}

func newTestOrchestrator(source *fakeSource, sinks []Sink) (*Orchestrator, *ring.Ring) {
	r := ring.New(4, 16)
	var o *Orchestrator
	pool := workerpool.New(1, 0, func(id int, src, dst *frame.Frame) error {
		dst.CopyFrom(src)
		return nil
	}, func(id int, dst *frame.Frame) { o.OnEncoded(id, dst) }, nil)
	o = New(source, pool, r, blank.New(), sinks, 1, Config{DesiredFPS: 1000}, nil)
	return o, r
}

func TestOnEncodedPublishesToRingAndAggregatesKeyRequest(t *testing.T) {
	sinkA := &fakeSink{checkResult: true, wantKey: false}
	sinkB := &fakeSink{checkResult: true, wantKey: true}
	o, r := newTestOrchestrator(&fakeSource{}, []Sink{sinkA, sinkB})
	defer o.pool.Stop()

	src := &frame.Frame{Used: 3, Data: []byte{1, 2, 3}}
	o.OnEncoded(0, src)

	if sinkA.puts != 1 || sinkB.puts != 1 {
		t.Fatalf("expected both sinks to receive a put, got %d and %d", sinkA.puts, sinkB.puts)
	}
	if !o.forceKey.Load() {
		t.Fatalf("expected forceKey aggregated true from sinkB's request")
	}

	var dst frame.Frame
	if _, err := r.ConsumerAcquire(0, &dst); err != nil {
		t.Fatalf("ConsumerAcquire: %v", err)
	}
	if dst.Used != 3 || dst.Data[0] != 1 {
		t.Fatalf("expected the published frame to reach the ring, got %+v", dst)
	}
}

func TestOnEncodedSkipsSinksThatDoNotWantTheFrame(t *testing.T) {
	sink := &fakeSink{checkResult: false}
	o, _ := newTestOrchestrator(&fakeSource{}, []Sink{sink})
	defer o.pool.Stop()

	o.OnEncoded(0, &frame.Frame{Used: 1, Data: []byte{1}})
	if sink.puts != 0 {
		t.Fatalf("expected ServerCheck=false to skip ServerPut, got %d puts", sink.puts)
	}
}

func TestIdleWithNoHTTPClientsAndNoSinkClients(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSource{}, nil)
	defer o.pool.Stop()
	if !o.idle() {
		t.Fatalf("expected idle with no HTTP clients and no sinks")
	}
	o.HasHTTPClients = func() bool { return true }
	if o.idle() {
		t.Fatalf("expected not idle once HasHTTPClients reports a client")
	}
}

func TestRunSubstitutesBlankFrameWhenOffline(t *testing.T) {
	source := &fakeSource{online: false, width: 8, height: 4}
	sink := &fakeSink{checkResult: true}
	o, r := newTestOrchestrator(source, []Sink{sink})
	defer o.pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	o.Run(ctx)

	var dst frame.Frame
	if _, err := r.ConsumerAcquire(0, &dst); err != nil {
		t.Fatalf("expected a blank frame to have been published, got %v", err)
	}
	if dst.Format != frame.JPEG || dst.Online {
		t.Fatalf("expected an offline blank JPEG frame, got %+v", dst)
	}
}

func TestRunExitOnNoClientsFiresLoopBreak(t *testing.T) {
	source := &fakeSource{online: true, width: 4, height: 2}
	o, _ := newTestOrchestrator(source, nil)
	defer o.pool.Stop()
	o.cfg.ExitOnNoClients = 5 * time.Millisecond
	o.lastRequestTS.Store(time.Now().Add(-time.Second).UnixNano())

	fired := make(chan struct{})
	o.LoopBreak = func() { close(fired) }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("LoopBreak was never called")
	}
	<-done
}
