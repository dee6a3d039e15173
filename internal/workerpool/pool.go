// Package workerpool schedules per-frame encode jobs across a fixed
// set of workers under an optional target dispatch interval
// (spec.md §4.3). Grounded on the teacher's jpeg.Farm/farmTask design:
// one persistent destination buffer per worker, reused across jobs,
// and a drain-then-join shutdown.
package workerpool

import (
	"strconv"
	"sync"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/frame"
	"github.com/warpcomdev/ustreamerd/internal/servicelog"
)

type stringError string

func (e stringError) Error() string { return string(e) }

// ErrBusy is returned by Submit when every worker is occupied.
const ErrBusy = stringError("workerpool: no idle worker")

// RunFunc compresses src into dst on behalf of worker number id. The
// pool never inspects the error beyond logging it.
type RunFunc func(id int, src, dst *frame.Frame) error

// OnComplete is invoked after a successful RunFunc, from the worker's
// own goroutine, with dst holding the freshly produced frame.
type OnComplete func(id int, dst *frame.Frame)

type job struct {
	src *frame.Frame
}

type worker struct {
	id           int
	dest         frame.Frame
	jobs         chan job
	lastDispatch time.Time
}

// Pool runs N workers, each with its own persistent destination
// buffer, dispatching encode jobs submitted via Submit.
type Pool struct {
	log             servicelog.Logger
	run             RunFunc
	onComplete      OnComplete
	desiredInterval time.Duration

	workers []*worker
	free    chan int // indices of idle workers

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New starts n workers. desiredInterval of zero disables dispatch
// throttling.
func New(n int, desiredInterval time.Duration, run RunFunc, onComplete OnComplete, log servicelog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		log:             log,
		run:             run,
		onComplete:      onComplete,
		desiredInterval: desiredInterval,
		workers:         make([]*worker, n),
		free:            make(chan int, n),
		stopCh:          make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		w := &worker{id: i, jobs: make(chan job, 1)}
		p.workers[i] = w
		p.free <- i
		p.wg.Add(1)
		go p.runWorker(w)
	}
	return p
}

// Submit dispatches src to an idle worker. Returns ErrBusy immediately
// if none is free; never blocks waiting for one. If the desiredInterval
// throttle has not yet elapsed for the chosen worker, the submission
// is silently dropped (not queued) and nil is returned -- latency over
// completeness, per spec.
func (p *Pool) Submit(src *frame.Frame) error {
	select {
	case idx := <-p.free:
		w := p.workers[idx]
		if p.desiredInterval > 0 {
			since := time.Since(w.lastDispatch)
			if since < p.desiredInterval {
				p.free <- idx // return the worker unused
				jobsThrottled.Inc()
				return nil
			}
		}
		w.lastDispatch = time.Now()
		w.jobs <- job{src: src}
		jobsDispatched.Inc()
		return nil
	default:
		jobsBusy.Inc()
		return ErrBusy
	}
}

func (p *Pool) runWorker(w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case j, ok := <-w.jobs:
			if !ok {
				return
			}
			start := time.Now()
			err := p.run(w.id, j.src, &w.dest)
			jobDuration.WithLabelValues(strconv.Itoa(w.id)).Observe(time.Since(start).Seconds())
			if err != nil {
				if p.log != nil {
					p.log.Error("encode job failed", servicelog.Int("worker", w.id), servicelog.Error(err))
				}
			} else if p.onComplete != nil {
				p.onComplete(w.id, &w.dest)
			}
			select {
			case p.free <- w.id:
			case <-p.stopCh:
				return
			}
		}
	}
}

// Stop drains in-flight jobs and joins every worker. Safe to call
// once; subsequent calls are no-ops.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}
