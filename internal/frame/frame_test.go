package frame

import "testing"

func TestCopyFromReusesBuffer(t *testing.T) {
	var dst Frame
	dst.Grow(16)
	buf := dst.Data

	src := &Frame{Data: []byte{1, 2, 3}, Used: 3, Width: 4, Height: 2, Format: JPEG, Key: true}
	dst.CopyFrom(src)

	if &dst.Data[0] != &buf[0] {
		t.Fatalf("expected CopyFrom to reuse the destination's existing buffer")
	}
	if dst.Used != 3 || dst.Width != 4 || dst.Height != 2 || dst.Format != JPEG || !dst.Key {
		t.Fatalf("unexpected copied metadata: %+v", dst)
	}
}

func TestCopyFromGrowsWhenTooSmall(t *testing.T) {
	var dst Frame
	dst.Grow(2)
	src := &Frame{Data: []byte{1, 2, 3, 4, 5}, Used: 5}
	dst.CopyFrom(src)
	if dst.Used != 5 || len(dst.Slice()) != 5 {
		t.Fatalf("expected the destination to grow to fit, got %+v", dst)
	}
}

func TestEqualRequiresSameGeometryAndBytes(t *testing.T) {
	a := &Frame{Data: []byte{1, 2, 3}, Used: 3, Width: 4, Height: 2, Format: JPEG}
	b := &Frame{Data: []byte{1, 2, 3}, Used: 3, Width: 4, Height: 2, Format: JPEG}
	if !Equal(a, b) {
		t.Fatalf("expected identical frames to be Equal")
	}

	c := &Frame{Data: []byte{1, 2, 9}, Used: 3, Width: 4, Height: 2, Format: JPEG}
	if Equal(a, c) {
		t.Fatalf("expected differing bytes to not be Equal")
	}

	d := &Frame{Data: []byte{1, 2, 3}, Used: 3, Width: 8, Height: 2, Format: JPEG}
	if Equal(a, d) {
		t.Fatalf("expected differing geometry to not be Equal")
	}
}

func TestValidateRejectsUsedExceedingAllocated(t *testing.T) {
	f := &Frame{Data: make([]byte, 4), Used: 8}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected an error when Used exceeds Allocated")
	}
}

func TestValidateRejectsRawFrameWithShortStride(t *testing.T) {
	f := &Frame{Data: make([]byte, 16), Used: 16, Width: 8, Height: 1, Stride: 4, Format: RawYUYV}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected an error for a stride smaller than width*bytesPerPixel")
	}
}

func TestValidateRejectsCompressedFrameWithNonZeroStride(t *testing.T) {
	f := &Frame{Data: make([]byte, 16), Used: 16, Stride: 4, Format: JPEG}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected an error for a compressed frame with non-zero stride")
	}
}

func TestValidateAcceptsWellFormedRawFrame(t *testing.T) {
	f := &Frame{Data: make([]byte, 16), Used: 16, Width: 8, Height: 1, Stride: 16, Format: RawYUYV}
	if err := f.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsTimestampsOutOfOrder(t *testing.T) {
	f := &Frame{Data: make([]byte, 1), Used: 1, GrabTS: 5, EncodeBeginTS: 2}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected an error when grab_ts is after encode_begin_ts")
	}
}
