package encoder

import (
	"testing"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

func TestParseTypeAliases(t *testing.T) {
	cases := map[string]Type{
		"cpu":        CPU,
		" CPU ":      CPU,
		"hw":         Hardware,
		"hardware":   Hardware,
		"mjpeg":      Hardware,
		"m2m-video":  M2MVideo,
		"m2mvideo":   M2MVideo,
		"x264":       M2MVideo,
		"h264":       M2MVideo,
		"m2m-image":  M2MImage,
		"m2mimage":   M2MImage,
		"vendor":     Vendor,
		"Vendor":     Vendor,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%q: want %v, got %v", in, want, got)
		}
	}
}

func TestParseTypeUnknown(t *testing.T) {
	if _, err := ParseType("bogus"); err != ErrUnknownEncoderType {
		t.Fatalf("expected ErrUnknownEncoderType, got %v", err)
	}
}

func TestOpenRule1JPEGInputForcesHardware(t *testing.T) {
	f := NewFacade(CPU, 80, nil, nil)
	resolved, _ := f.Open(frame.JPEG, 4)
	if resolved != Hardware {
		t.Fatalf("want Hardware, got %v", resolved)
	}
}

func TestOpenRule1HardwareRequestedOnJPEGStaysHardware(t *testing.T) {
	f := NewFacade(Hardware, 80, nil, nil)
	resolved, _ := f.Open(frame.JPEG, 4)
	if resolved != Hardware {
		t.Fatalf("want Hardware, got %v", resolved)
	}
}

func TestOpenRule2HardwareOnNonJPEGFallsBackToCPU(t *testing.T) {
	f := NewFacade(Hardware, 80, nil, nil)
	resolved, _ := f.Open(frame.RawYUYV, 4)
	if resolved != CPU {
		t.Fatalf("want CPU, got %v", resolved)
	}
}

func TestOpenRule4VendorForcesSingleWorker(t *testing.T) {
	f := NewFacade(Vendor, 80, nil, &fakeCompressor{})
	_, workers := f.Open(frame.RawYUYV, 8)
	if workers != 1 {
		t.Fatalf("want 1 worker for a vendor pipeline, got %d", workers)
	}
}

func TestOpenLeavesCPURequestOnRawInputAlone(t *testing.T) {
	f := NewFacade(CPU, 80, nil, nil)
	resolved, workers := f.Open(frame.RawYUYV, 4)
	if resolved != CPU || workers != 4 {
		t.Fatalf("want (CPU, 4), got (%v, %d)", resolved, workers)
	}
}

type fakeCompressor struct {
	calls int
}

func (c *fakeCompressor) Compress(src, dst *frame.Frame, quality int, forceKey bool) error {
	c.calls++
	dst.CopyFrom(src)
	return nil
}

func TestM2MCompressorBuiltLazilyOncePerWorker(t *testing.T) {
	built := 0
	f := NewFacade(M2MVideo, 80, func() Compressor {
		built++
		return &fakeCompressor{}
	}, nil)
	f.Open(frame.RawYUYV, 2)

	src := &frame.Frame{Used: 1, Data: []byte{1}}
	var dst frame.Frame
	if err := f.Run(0, src, &dst); err != nil {
		t.Fatalf("Run(0): %v", err)
	}
	if err := f.Run(0, src, &dst); err != nil {
		t.Fatalf("Run(0) again: %v", err)
	}
	if err := f.Run(1, src, &dst); err != nil {
		t.Fatalf("Run(1): %v", err)
	}
	if built != 2 {
		t.Fatalf("want exactly 2 lazily-built compressors (one per worker id), got %d", built)
	}
}

func TestRunHardwareIsPassthrough(t *testing.T) {
	f := NewFacade(Hardware, 80, nil, nil)
	f.Open(frame.JPEG, 1)
	src := &frame.Frame{Used: 3, Data: []byte{9, 9, 9}, Format: frame.JPEG}
	var dst frame.Frame
	if err := f.Run(0, src, &dst); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dst.Used != 3 || dst.Data[0] != 9 {
		t.Fatalf("expected a byte-identical passthrough, got %+v", dst)
	}
}

func TestSetQualityAndGetRuntimeParams(t *testing.T) {
	f := NewFacade(CPU, 50, nil, nil)
	f.SetQuality(90)
	typ, q := f.GetRuntimeParams()
	if typ != CPU || q != 90 {
		t.Fatalf("want (CPU, 90), got (%v, %d)", typ, q)
	}
}
