// Package memsink implements the cross-process shared-memory frame
// handoff (spec.md §4.2). A producer process ("server") publishes the
// most recent frame into a memory-mapped region; zero or more
// consumer processes poll it. An advisory flock on the backing file
// is the sole mutual-exclusion primitive, exactly as in
// original_source/src/libs/memsink.c.
package memsink

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

type stringError string

func (e stringError) Error() string { return string(e) }

const (
	// ErrInvalidObject is returned by Open when the object name's size
	// suffix is missing or malformed.
	ErrInvalidObject = stringError("memsink: invalid object name")
	// ErrOpenFailed wraps a failure to open/create the backing file.
	ErrOpenFailed = stringError("memsink: open failed")
	// ErrTruncateFailed wraps a failure to size the backing file.
	ErrTruncateFailed = stringError("memsink: truncate failed")
	// ErrMapFailed wraps a failure to mmap the backing file.
	ErrMapFailed = stringError("memsink: map failed")
	// ErrNoData is returned by ClientGet when there is nothing new to read.
	ErrNoData = stringError("memsink: no data")
	// ErrVersionMismatch is returned when the sink's on-disk protocol
	// version doesn't match this build's.
	ErrVersionMismatch = stringError("memsink: protocol version mismatch")
	// ErrTooBig is returned by ServerPut when the frame exceeds the
	// sink's configured payload capacity.
	ErrTooBig = stringError("memsink: frame too big for sink")
)

// DefaultBaseDir is where Open looks for/creates the backing file when
// the caller doesn't override it. original_source uses POSIX
// shm_open, which places objects on a tmpfs-backed namespace; we get
// the same effect, without cgo, by mmap'ing a regular file under
// /dev/shm (SPEC_FULL.md §4.2).
const DefaultBaseDir = "/dev/shm"

// Sink is one end -- producer or consumer -- of a shared memory frame
// channel.
type Sink struct {
	name      string
	server    bool
	clientTTL time.Duration
	timeout   time.Duration

	f        *os.File
	mem      []byte
	dataSize int
	hdr      header

	hasClients     atomic.Bool
	unsafeLastTS   float64 // producer-only: last observed last_client_ts
	lastReadID     uint64  // consumer-only
}

// Open creates (server) or attaches to (client) a named sink. object
// carries the payload-size suffix (spec.md §6); baseDir overrides
// DefaultBaseDir, mainly for tests.
func Open(name, object string, server bool, mode os.FileMode, clientTTL, timeout time.Duration, baseDir string) (*Sink, error) {
	dataSize, err := payloadSizeFromObjectSuffix(object)
	if err != nil {
		return nil, ErrInvalidObject
	}
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}

	flags := os.O_RDWR
	if server {
		flags |= os.O_CREATE
	}
	path := filepath.Join(baseDir, object)
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return nil, ErrOpenFailed
	}

	total := headerSize + dataSize
	if server {
		if err := f.Truncate(int64(total)); err != nil {
			f.Close()
			return nil, ErrTruncateFailed
		}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, ErrMapFailed
	}

	s := &Sink{
		name:      name,
		server:    server,
		clientTTL: clientTTL,
		timeout:   timeout,
		f:         f,
		mem:       mem,
		dataSize:  dataSize,
		hdr:       header{buf: mem},
	}
	return s, nil
}

// Close unmaps and closes the backing file. rm, if true, removes the
// backing file (the shm_unlink equivalent); only meaningful for servers.
func (s *Sink) Close(rm bool) error {
	var err error
	if s.mem != nil {
		if uerr := unix.Munmap(s.mem); uerr != nil {
			err = uerr
		}
		s.mem = nil
	}
	path := s.f.Name()
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if rm && s.server {
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			if err == nil {
				err = rerr
			}
		}
	}
	return err
}

// HasClients reports whether ServerCheck/ServerPut believe a consumer
// is currently attached. Safe to read without the lock.
func (s *Sink) HasClients() bool { return s.hasClients.Load() }

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// ServerCheck decides whether the producer should publish now. frame
// may be nil if the caller just wants a liveness probe. See
// SPEC_FULL.md §4.2 for the exact branch semantics, reproduced from
// us_memsink_server_check.
func (s *Sink) ServerCheck(fr *frame.Frame) bool {
	if s.hdr.magic() != magicValue || s.hdr.version() != versionValue {
		return true
	}

	unsafeTS := s.hdr.lastClientTS() // deliberately read without the lock
	if unsafeTS != s.unsafeLastTS {
		s.unsafeLastTS = unsafeTS
		s.hasClients.Store(true)
		return true
	}

	locked, err := tryFlock(s.f)
	if err != nil {
		return false
	}
	if !locked {
		// Someone else holds the lock: an active reader.
		s.hasClients.Store(true)
		return true
	}
	defer unflock(s.f)

	hasClients := s.hdr.lastClientTS()+s.clientTTL.Seconds() > now()
	s.hasClients.Store(hasClients)
	sinkClients.WithLabelValues(s.name).Set(boolToMetric(hasClients))
	if hasClients {
		return true
	}
	if fr != nil && !sameHeaderGeometry(s.hdr, fr) {
		return true
	}
	return false
}

// ServerPut publishes fr into the sink. keyRequested, if non-nil, is
// set to whether a consumer is still waiting on a keyframe after this
// publish. Matches us_memsink_server_put: a busy lock silently skips
// the frame; any other lock error is reported.
func (s *Sink) ServerPut(fr *frame.Frame, keyRequested *bool) error {
	if fr.Used > s.dataSize {
		return ErrTooBig
	}

	locked, err := flockTimedWait(s.f, time.Second)
	if err != nil {
		return err
	}
	if !locked {
		sinkSkipped.WithLabelValues(s.name).Inc()
		return nil // busy: frame skipped, not an error
	}
	defer unflock(s.f)

	s.hdr.setID(nextMonotonicID())
	if s.hdr.keyRequested() && fr.Key {
		s.hdr.setKeyRequested(false)
	}
	if keyRequested != nil {
		*keyRequested = s.hdr.keyRequested()
	}

	copy(s.hdr.data(), fr.Data[:fr.Used])
	s.hdr.setUsed(uint64(fr.Used))
	copyMetaToHeader(fr, s.hdr)

	s.hdr.setMagic(magicValue)
	s.hdr.setVersion(versionValue)

	hasClients := s.hdr.lastClientTS()+s.clientTTL.Seconds() > now()
	s.hasClients.Store(hasClients)
	sinkPublished.WithLabelValues(s.name).Inc()
	sinkClients.WithLabelValues(s.name).Set(boolToMetric(hasClients))
	return nil
}

// ClientGet reads the latest frame if it's newer than the last one
// this Sink handle read. requireKey asks the producer for a keyframe
// on its next publish. Returns ErrNoData when nothing new is
// available (including "sink never initialized").
func (s *Sink) ClientGet(dst *frame.Frame, keyRequested *bool, requireKey bool) error {
	locked, err := flockTimedWait(s.f, s.timeout)
	if err != nil {
		return err
	}
	if !locked {
		return ErrNoData
	}
	defer unflock(s.f)

	if s.hdr.magic() != magicValue {
		return ErrNoData
	}
	if s.hdr.version() != versionValue {
		return ErrVersionMismatch
	}

	s.hdr.setLastClientTS(now())

	id := s.hdr.id()
	if id == s.lastReadID {
		return ErrNoData
	}
	s.lastReadID = id

	used := int(s.hdr.used())
	dst.Grow(used)
	copy(dst.Data, s.hdr.data()[:used])
	dst.Used = used
	copyMetaFromHeader(s.hdr, dst)

	if keyRequested != nil {
		*keyRequested = s.hdr.keyRequested()
	}
	if requireKey {
		s.hdr.setKeyRequested(true)
	}
	return nil
}

func sameHeaderGeometry(h header, fr *frame.Frame) bool {
	return h.width() == fr.Width && h.height() == fr.Height && frame.Format(h.format()) == fr.Format
}

func copyMetaToHeader(fr *frame.Frame, h header) {
	h.setWidth(fr.Width)
	h.setHeight(fr.Height)
	h.setStride(fr.Stride)
	h.setFormat(uint32(fr.Format))
	h.setOnline(fr.Online)
	h.setKey(fr.Key)
	h.setGOP(fr.GOP)
	h.setGrabTS(fr.GrabTS)
	h.setEncodeBeginTS(fr.EncodeBeginTS)
	h.setEncodeEndTS(fr.EncodeEndTS)
}

func copyMetaFromHeader(h header, fr *frame.Frame) {
	fr.Width = h.width()
	fr.Height = h.height()
	fr.Stride = h.stride()
	fr.Format = frame.Format(h.format())
	fr.Online = h.online()
	fr.Key = h.key()
	fr.GOP = h.gop()
	fr.GrabTS = h.grabTS()
	fr.EncodeBeginTS = h.encodeBeginTS()
	fr.EncodeEndTS = h.encodeEndTS()
}

func boolToMetric(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

var idCounter atomic.Uint64

// nextMonotonicID hands out strictly increasing frame ids, seeded
// from wall-clock nanoseconds so ids stay monotonic across a process
// restart against the same sink.
func nextMonotonicID() uint64 {
	for {
		cur := idCounter.Load()
		next := cur + 1
		if cur == 0 {
			next = uint64(time.Now().UnixNano())
		}
		if idCounter.CAS(cur, next) {
			return next
		}
	}
}
