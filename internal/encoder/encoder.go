// Package encoder implements the codec-backend facade of spec.md
// §4.4: it picks among CPU, Hardware passthrough, M2M, and vendor
// pipelines per capture format, and exposes a uniform Compressor to
// internal/workerpool regardless of which backend was chosen.
package encoder

import (
	"strings"
	"sync"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

type stringError string

func (e stringError) Error() string { return string(e) }

// ErrUnknownEncoderType is returned by ParseType for an unrecognized name.
const ErrUnknownEncoderType = stringError("encoder: unknown encoder type")

// Type enumerates the backend families spec.md §4.4 selects among.
type Type int

const (
	CPU Type = iota
	Hardware
	M2MVideo
	M2MImage
	Vendor
)

func (t Type) String() string {
	switch t {
	case CPU:
		return "cpu"
	case Hardware:
		return "hw"
	case M2MVideo:
		return "m2m-video"
	case M2MImage:
		return "m2m-image"
	case Vendor:
		return "vendor"
	default:
		return "unknown"
	}
}

// ParseType maps case-insensitive names, including the uStreamer CLI's
// historical aliases, to a canonical Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "hw", "hardware", "mjpeg":
		return Hardware, nil
	case "m2m-video", "m2mvideo", "x264", "h264":
		return M2MVideo, nil
	case "m2m-image", "m2mimage":
		return M2MImage, nil
	case "vendor":
		return Vendor, nil
	default:
		return 0, ErrUnknownEncoderType
	}
}

// Compressor turns a raw or passthrough source frame into an encoded
// destination frame. Implementations are not required to be
// concurrency-safe across different workers; the Facade hands each
// worker its own instance where that matters (M2M).
type Compressor interface {
	Compress(src, dst *frame.Frame, quality int, forceKey bool) error
}

// ExternalCompressor is the extension point for H.264/H.265 backends
// that this module doesn't implement in pure Go (out of scope per
// spec.md §1): a subprocess or cgo-backed implementation supplied by
// the caller at runtime.
type ExternalCompressor = Compressor

// VendorCompressor is the extension point for pipelines that bind
// capture and encode internally (policy rule 4: forces n_workers=1).
type VendorCompressor = Compressor

// Facade resolves which backend handles a given capture format and
// requested type, then hands internal/workerpool a RunFunc.
type Facade struct {
	mu      sync.Mutex
	typ     Type
	quality int

	inputFormat frame.Format
	m2m         []Compressor // one per worker, built lazily
	m2mFactory  func() Compressor
	vendor      Compressor
}

// NewFacade builds a Facade for a given requested type, quality and
// the factory used to build one M2M compressor per worker (nil if the
// resolved type never needs one).
func NewFacade(requested Type, quality int, m2mFactory func() Compressor, vendor Compressor) *Facade {
	return &Facade{typ: requested, quality: quality, m2mFactory: m2mFactory, vendor: vendor}
}

// Open applies the four policy rules of spec.md §4.4 against the
// capture's input format and returns (resolvedType, workers), where
// workers is the n_workers the caller must actually run (vendor
// pipelines force it to 1).
func (f *Facade) Open(inputFormat frame.Format, requestedWorkers int) (Type, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputFormat = inputFormat
	resolved := f.typ

	switch {
	case inputFormat == frame.JPEG && resolved != Hardware:
		// Rule 1: input is already JPEG and caller didn't ask for a
		// straight passthrough -- force Hardware (just copy).
		resolved = Hardware
	case inputFormat != frame.JPEG && resolved == Hardware:
		// Rule 2: no hardware JPEG passthrough available for non-JPEG
		// input -- fall back to CPU.
		resolved = CPU
	}

	workers := requestedWorkers
	if resolved == Vendor {
		// Rule 4: vendor pipelines bind capture+encode; one worker only.
		workers = 1
	}

	f.typ = resolved
	if resolved == M2MVideo || resolved == M2MImage {
		f.m2m = make([]Compressor, workers)
	}
	return resolved, workers
}

// GetRuntimeParams returns the current (type, quality), safe to call
// concurrently with Run.
func (f *Facade) GetRuntimeParams() (Type, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typ, f.quality
}

// SetQuality updates the quality used by subsequent Run calls.
func (f *Facade) SetQuality(q int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quality = q
}

// Run is the internal/workerpool.RunFunc for this Facade: it
// dispatches to the resolved backend for worker id.
func (f *Facade) Run(id int, src, dst *frame.Frame) error {
	f.mu.Lock()
	typ := f.typ
	quality := f.quality
	f.mu.Unlock()

	start := time.Now()
	err := f.run(typ, id, src, dst, quality)
	compressionLatency.WithLabelValues(typ.String()).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	compressionStatus.WithLabelValues(typ.String(), status).Inc()
	return err
}

func (f *Facade) run(typ Type, id int, src, dst *frame.Frame, quality int) error {
	switch typ {
	case Hardware:
		dst.CopyFrom(src)
		return nil
	case CPU:
		return cpuCompress(src, dst, quality, src.Key)
	case M2MVideo, M2MImage:
		c := f.m2mCompressor(id)
		return c.Compress(src, dst, quality, src.Key)
	case Vendor:
		return f.vendor.Compress(src, dst, quality, src.Key)
	default:
		dst.CopyFrom(src)
		return nil
	}
}

// m2mCompressor lazily builds the per-worker M2M instance (policy
// rule 3: one encoder instance per worker, created on first use).
func (f *Facade) m2mCompressor(id int) Compressor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id >= len(f.m2m) {
		grown := make([]Compressor, id+1)
		copy(grown, f.m2m)
		f.m2m = grown
	}
	if f.m2m[id] == nil {
		f.m2m[id] = f.m2mFactory()
	}
	return f.m2m[id]
}
