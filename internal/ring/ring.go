// Package ring implements the single-producer/single-consumer bounded
// frame ring between the encoder pool and the HTTP refresher
// (spec.md §4.1). The happy path never takes a lock: cursors and
// per-slot sequence numbers are plain atomics, following the seqlock
// pattern used by the lossy ring buffer in otter/v2's internal/lossy
// package (see DESIGN.md).
package ring

import (
	"errors"
	"time"

	"go.uber.org/atomic"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

// ErrEmpty is returned by ConsumerAcquire when no frame was ever
// published to the ring.
var ErrEmpty = errors.New("ring: empty")

const pollInterval = time.Millisecond

type slot struct {
	// seq is even when the slot holds a stable, published frame equal
	// to seq/2's id, and odd while the producer is mid-write. The
	// consumer retries whenever it observes an odd seq, or an even seq
	// that changed between the start and end of its copy.
	seq   atomic.Uint64
	frame frame.Frame
}

// Ring is a fixed-capacity sequence of pre-allocated frame slots.
// Exactly one producer and one consumer goroutine may use a Ring.
type Ring struct {
	slots []slot

	// producer-owned; never touched by the consumer goroutine.
	nextID    uint64
	pendingID uint64

	// published is the id of the newest slot the producer has
	// released. Zero means nothing has ever been published.
	published atomic.Uint64
	// tail is the oldest id still reachable (i.e. not yet overwritten).
	// Only used for accounting/metrics; correctness never depends on it.
	tail atomic.Uint64

	overflowed atomic.Uint64 // count of frames silently dropped on overflow
}

// New allocates a Ring of the given slot capacity, each slot
// pre-sized to hold bufSize bytes without reallocating.
func New(capacity, bufSize int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring{slots: make([]slot, capacity)}
	for i := range r.slots {
		r.slots[i].frame.Data = make([]byte, 0, bufSize)
	}
	return r
}

// Capacity returns the number of slots.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Overflowed returns the number of publishes that reused a slot whose
// frame had not yet been retired through ConsumerRelease (spec.md's
// RingFull policy: not surfaced as an error, just counted). A read via
// ConsumerAcquire alone does not retire a frame.
func (r *Ring) Overflowed() uint64 {
	return r.overflowed.Load()
}

// ProducerAcquire returns the slot the producer should fill next. It
// never blocks: if the ring is full (the consumer has fallen more
// than Capacity() frames behind), the oldest unretired slot is reused
// and silently lost.
//
// The slot's sequence is immediately marked odd ("write in progress"),
// so a consumer a full lap behind that is mid-copy of this same
// physical slot observes the change and retries instead of returning
// a torn frame (spec.md §8's "no frame's metadata block is torn").
func (r *Ring) ProducerAcquire() (idx int) {
	id := r.nextID + 1
	r.pendingID = id
	idx = int(id % uint64(len(r.slots)))

	r.slots[idx].seq.Store(id*2 - 1)

	tail := r.tail.Load()
	if id-tail > uint64(len(r.slots)) {
		r.overflowed.Inc()
		ringOverflows.Inc()
		r.tail.Store(id - uint64(len(r.slots)))
	}
	return idx
}

// SlotFrame exposes the frame buffer at idx for the producer to
// populate in place between ProducerAcquire and ProducerRelease.
func (r *Ring) SlotFrame(idx int) *frame.Frame {
	return &r.slots[idx].frame
}

// ProducerRelease publishes the slot filled by the matching
// ProducerAcquire, making it visible to ConsumerAcquire.
func (r *Ring) ProducerRelease(idx int) {
	id := r.pendingID
	r.nextID = id
	// The odd value set in ProducerAcquire flips even here, now that
	// the write is complete; this is the value a consumer's torn-read
	// check compares against.
	r.slots[idx].seq.Store(id * 2)
	r.published.Store(id)
	ringPublished.Inc()
}

// ConsumerAcquire waits up to timeout for a published frame and
// copies the most recently published one into dst. It never returns
// an older frame than the last one it returned. ErrEmpty is returned
// only if nothing has ever been published; once at least one frame
// exists, the same (possibly already-seen) frame is returned rather
// than blocking past timeout, matching spec.md's "always returns the
// most recent published slot" contract. Passing a zero timeout
// performs exactly one non-blocking check.
func (r *Ring) ConsumerAcquire(timeout time.Duration, dst *frame.Frame) (id uint64, err error) {
	deadline := time.Now().Add(timeout)
	for {
		id = r.published.Load()
		if id != 0 {
			idx := int(id % uint64(len(r.slots)))
			before := r.slots[idx].seq.Load()
			if before%2 == 0 && before == id*2 {
				dst.CopyFrom(&r.slots[idx].frame)
				after := r.slots[idx].seq.Load()
				if after == before {
					return id, nil
				}
				// Torn read: the producer wrapped around and
				// overwrote this slot mid-copy. Retry immediately;
				// a newer id will be visible.
				continue
			}
		}
		if timeout <= 0 || time.Now().After(deadline) {
			if id == 0 {
				return 0, ErrEmpty
			}
			return id, nil
		}
		time.Sleep(pollInterval)
	}
}

// ConsumerRelease retires the read. The ring's overwrite policy means
// correctness never depends on this call; it advances the tail that
// Overflowed counts against, and mirrors the acquire/release
// vocabulary spec.md uses.
func (r *Ring) ConsumerRelease(id uint64) {
	r.tail.Store(id)
}
