// Package orchestrator runs the capture -> encode -> ring/sink hot
// loop (spec.md §4.5): pulls a raw frame from capture, submits it to
// the worker pool, and on completion publishes the encoded frame to
// the ring and to any attached memory sinks. Substitutes a cached
// blank frame while capture reports offline, propagates sink
// keyframe requests back into the next encode call, and applies the
// slowdown/exit-on-no-clients idle policies.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/blank"
	"github.com/warpcomdev/ustreamerd/internal/capture"
	"github.com/warpcomdev/ustreamerd/internal/frame"
	"github.com/warpcomdev/ustreamerd/internal/ring"
	"github.com/warpcomdev/ustreamerd/internal/servicelog"
	"github.com/warpcomdev/ustreamerd/internal/workerpool"
)

// Sink is the subset of *memsink.Sink the orchestrator needs, kept as
// an interface so tests can attach fakes.
type Sink interface {
	ServerCheck(*frame.Frame) bool
	ServerPut(*frame.Frame, *bool) error
	HasClients() bool
}

// Config holds the orchestrator's idle-policy knobs.
type Config struct {
	DesiredFPS      int
	Slowdown        bool
	SlowdownFactor  int // e.g. 10x poll-interval stretch
	ExitOnNoClients time.Duration
}

// Orchestrator wires a capture.Source through a workerpool.Pool into
// a ring.Ring and a set of Sinks.
type Orchestrator struct {
	source capture.Source
	pool   *workerpool.Pool
	ring   *ring.Ring
	blank  *blank.Generator
	sinks  []Sink
	log    servicelog.Logger
	cfg    Config

	rawBufs []frame.Frame
	rawIdx  uint64

	forceKey      atomic.Bool
	lastRequestTS atomic.Int64 // unix nanos; updated by the HTTP layer
	lastGeometryW uint32
	lastGeometryH uint32

	// LoopBreak, if set, is invoked when ExitOnNoClients fires.
	LoopBreak func()
	// HasHTTPClients reports whether any HTTP streaming client is
	// attached; consulted by the slowdown policy alongside the sinks.
	HasHTTPClients func() bool
}

// New builds an Orchestrator. poolSize must match the workerpool's
// worker count so raw buffers never alias an in-flight job.
func New(source capture.Source, pool *workerpool.Pool, ringBuf *ring.Ring, blankGen *blank.Generator,
	sinks []Sink, poolSize int, cfg Config, log servicelog.Logger) *Orchestrator {
	o := &Orchestrator{
		source:  source,
		pool:    pool,
		ring:    ringBuf,
		blank:   blankGen,
		sinks:   sinks,
		cfg:     cfg,
		log:     log,
		rawBufs: make([]frame.Frame, poolSize+1),
	}
	return o
}

// NoteRequest records that the HTTP layer served a request just now,
// resetting the ExitOnNoClients timer.
func (o *Orchestrator) NoteRequest() {
	o.lastRequestTS.Store(time.Now().UnixNano())
}

// OnEncoded is the workerpool.OnComplete callback: publish the
// encoded frame to the ring and every sink, and poll sinks for a
// pending keyframe request to honor on the next encode.
func (o *Orchestrator) OnEncoded(_ int, dst *frame.Frame) {
	idx := o.ring.ProducerAcquire()
	o.ring.SlotFrame(idx).CopyFrom(dst)
	o.ring.ProducerRelease(idx)

	requested := false
	for _, s := range o.sinks {
		if !s.ServerCheck(dst) {
			continue
		}
		var want bool
		if err := s.ServerPut(dst, &want); err != nil && o.log != nil {
			o.log.Error("sink put failed", servicelog.Error(err))
		}
		if want {
			requested = true
		}
	}
	o.forceKey.Store(requested)
}

// Run drives the hot loop until ctx is cancelled or capture returns a
// fatal error.
func (o *Orchestrator) Run(ctx context.Context) error {
	pollInterval := time.Second / time.Duration(maxInt(o.cfg.DesiredFPS, 1))

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if o.idle() {
			if o.cfg.ExitOnNoClients > 0 && o.sinceLastRequest() > o.cfg.ExitOnNoClients {
				if o.LoopBreak != nil {
					o.LoopBreak()
				}
				return nil
			}
			if o.cfg.Slowdown {
				factor := o.cfg.SlowdownFactor
				if factor < 1 {
					factor = 10
				}
				time.Sleep(pollInterval * time.Duration(factor))
			}
		}

		raw := o.nextRawBuf()
		online, err := o.source.Next(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !online {
			blankFrame := o.nextRawBuf()
			w, h := o.lastGeometryW, o.lastGeometryH
			if w == 0 {
				w, h = raw.Width, raw.Height
			}
			if err := o.blank.Fill(blankFrame, w, h); err != nil {
				if o.log != nil {
					o.log.Error("blank generation failed", servicelog.Error(err))
				}
				continue
			}
			o.OnEncoded(-1, blankFrame)
			continue
		}

		o.lastGeometryW, o.lastGeometryH = raw.Width, raw.Height
		raw.Key = o.forceKey.Load()
		if err := o.pool.Submit(raw); err != nil {
			// Busy: every worker occupied, drop this frame.
			continue
		}
	}
}

func (o *Orchestrator) nextRawBuf() *frame.Frame {
	i := atomic.AddUint64(&o.rawIdx, 1) % uint64(len(o.rawBufs))
	return &o.rawBufs[i]
}

func (o *Orchestrator) idle() bool {
	if o.HasHTTPClients != nil && o.HasHTTPClients() {
		return false
	}
	for _, s := range o.sinks {
		if s.HasClients() {
			return false
		}
	}
	return true
}

func (o *Orchestrator) sinceLastRequest() time.Duration {
	ts := o.lastRequestTS.Load()
	if ts == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ts))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
