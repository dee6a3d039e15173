// Package frame defines the carrier type that flows through the
// capture -> encode -> ring -> http pipeline.
package frame

import (
	"bytes"
	"fmt"
)

// Format tags the codec of a Frame's payload.
type Format int

const (
	// RawYUYV is an uncompressed YUYV 4:2:2 frame straight from capture.
	RawYUYV Format = iota
	// JPEG is an MJPEG-compatible compressed frame.
	JPEG
	// H264 is an H.264 elementary stream access unit.
	H264
	// H265 is an H.265 elementary stream access unit.
	//
	// The original implementation this protocol descends from reused the
	// V4L2 DV fourcc for H.265 because no standard tag existed at the
	// time. We don't: H265 is its own sentinel, never aliased.
	H265
)

func (f Format) String() string {
	switch f {
	case RawYUYV:
		return "RawYUYV"
	case JPEG:
		return "JPEG"
	case H264:
		return "H264"
	case H265:
		return "H265"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// BytesPerPixel returns the pixel stride for raw formats. Compressed
// formats have no fixed pixel stride and return 0.
func BytesPerPixel(f Format) int {
	switch f {
	case RawYUYV:
		return 2
	default:
		return 0
	}
}

// Frame is a self-contained unit of video data plus its metadata.
// The byte buffer is owned by the Frame; callers that need to retain
// the bytes past the next reuse of the Frame must copy them out.
type Frame struct {
	Data []byte // owned buffer, len(Data) == Allocated
	Used int    // valid byte count, Used <= len(Data)

	Width  uint32
	Height uint32
	Stride uint32 // 0 for compressed formats
	Format Format

	Key bool // keyframe
	GOP uint32

	Online bool // true if produced while the capture source was live

	GrabTS        float64 // monotonic seconds
	EncodeBeginTS float64
	EncodeEndTS   float64
}

// Allocated returns the capacity of the owned buffer.
func (f *Frame) Allocated() int {
	return len(f.Data)
}

// Grow makes sure the Frame owns a buffer of at least n bytes,
// reallocating only if the current one is too small.
func (f *Frame) Grow(n int) {
	if cap(f.Data) >= n {
		f.Data = f.Data[:n]
		return
	}
	f.Data = make([]byte, n)
}

// Slice returns the valid portion of the buffer.
func (f *Frame) Slice() []byte {
	return f.Data[:f.Used]
}

// Validate checks the Frame's internal invariants (spec.md §3).
func (f *Frame) Validate() error {
	if f.Used > len(f.Data) {
		return fmt.Errorf("frame: used %d exceeds allocated %d", f.Used, len(f.Data))
	}
	if f.Format == RawYUYV {
		minStride := f.Width * uint32(BytesPerPixel(f.Format))
		if f.Stride < minStride {
			return fmt.Errorf("frame: stride %d smaller than width*bpp %d", f.Stride, minStride)
		}
	} else if f.Stride != 0 {
		return fmt.Errorf("frame: compressed frame must have stride 0, got %d", f.Stride)
	}
	if f.GrabTS > f.EncodeBeginTS && f.EncodeBeginTS != 0 {
		return fmt.Errorf("frame: grab_ts %.6f after encode_begin_ts %.6f", f.GrabTS, f.EncodeBeginTS)
	}
	if f.EncodeBeginTS > f.EncodeEndTS && f.EncodeEndTS != 0 {
		return fmt.Errorf("frame: encode_begin_ts %.6f after encode_end_ts %.6f", f.EncodeBeginTS, f.EncodeEndTS)
	}
	return nil
}

// CopyFrom replaces the receiver's contents with src's, reusing the
// receiver's buffer where possible. This is the single-copy path used
// by the ring, the memory sink, and the HTTP "expose" step.
func (f *Frame) CopyFrom(src *Frame) {
	f.Grow(src.Used)
	copy(f.Data, src.Data[:src.Used])
	f.Used = src.Used
	f.Width = src.Width
	f.Height = src.Height
	f.Stride = src.Stride
	f.Format = src.Format
	f.Key = src.Key
	f.GOP = src.GOP
	f.Online = src.Online
	f.GrabTS = src.GrabTS
	f.EncodeBeginTS = src.EncodeBeginTS
	f.EncodeEndTS = src.EncodeEndTS
}

// SameGeometry reports whether two frames share width/height/format,
// the check the memory sink uses to decide a reader must see an
// update immediately regardless of liveness.
func SameGeometry(a, b *Frame) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Format == b.Format
}

// Equal reports whether two frames are byte-identical over their used
// range and share geometry - the drop-same-frames comparison.
func Equal(a, b *Frame) bool {
	if !SameGeometry(a, b) || a.Used != b.Used {
		return false
	}
	return bytes.Equal(a.Data[:a.Used], b.Data[:b.Used])
}
