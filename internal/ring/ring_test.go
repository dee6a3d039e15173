package ring

import (
	"testing"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

func publish(r *Ring, payload byte, used int) {
	idx := r.ProducerAcquire()
	f := r.SlotFrame(idx)
	f.Grow(used)
	for i := range f.Data {
		f.Data[i] = payload
	}
	f.Used = used
	f.Width, f.Height = 4, 2
	f.Format = frame.RawYUYV
	r.ProducerRelease(idx)
}

func TestConsumerAcquireEmpty(t *testing.T) {
	r := New(4, 16)
	var dst frame.Frame
	if _, err := r.ConsumerAcquire(0, &dst); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestProducerConsumerMonotonic(t *testing.T) {
	r := New(4, 16)
	var dst frame.Frame

	publish(r, 1, 8)
	id1, err := r.ConsumerAcquire(0, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Slice()[0] != 1 {
		t.Fatalf("expected payload 1, got %d", dst.Slice()[0])
	}

	publish(r, 2, 8)
	id2, err := r.ConsumerAcquire(0, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected id2 > id1, got %d <= %d", id2, id1)
	}
	if dst.Slice()[0] != 2 {
		t.Fatalf("expected payload 2, got %d", dst.Slice()[0])
	}
}

func TestConsumerAcquireReturnsSameFrameWithoutNewPublish(t *testing.T) {
	r := New(4, 16)
	var dst frame.Frame
	publish(r, 7, 4)

	id1, err := r.ConsumerAcquire(0, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := r.ConsumerAcquire(0, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id on repeated read with no new publish, got %d and %d", id1, id2)
	}
}

func TestOverflowOverwritesOldest(t *testing.T) {
	r := New(2, 16)
	for i := byte(0); i < 10; i++ {
		publish(r, i, 4)
	}
	if r.Overflowed() == 0 {
		t.Fatalf("expected overflow count > 0 after publishing more than capacity")
	}

	var dst frame.Frame
	id, err := r.ConsumerAcquire(0, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The consumer should observe the most recently published frame,
	// not a stale one evicted by the overwrite policy.
	if dst.Slice()[0] != 9 {
		t.Fatalf("expected latest payload 9, got %d (id=%d)", dst.Slice()[0], id)
	}
}

func TestProducerAcquireMarksSlotOddBeforeWrite(t *testing.T) {
	r := New(1, 16)
	publish(r, 1, 4)

	idx := r.ProducerAcquire()
	if r.slots[idx].seq.Load()%2 == 0 {
		t.Fatalf("expected an odd sequence while the write is in progress, to make a concurrent reader retry")
	}
	r.ProducerRelease(idx)
	if r.slots[idx].seq.Load()%2 != 0 {
		t.Fatalf("expected an even sequence once the write is published")
	}
}

func TestConsumerAcquireTimeoutWaitsForPublish(t *testing.T) {
	r := New(4, 16)
	var dst frame.Frame

	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		publish(r, 42, 4)
		close(done)
	}()

	id, err := r.ConsumerAcquire(100*time.Millisecond, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected a published id, got 0")
	}
	<-done
}
