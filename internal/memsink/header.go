package memsink

import (
	"encoding/binary"
	"math"
)

// Wire layout of the shared-memory header. Every sink, regardless of
// process or Go build, must agree on these offsets bit-for-bit
// (spec.md §6) -- this is the one place in the package where a fixed
// byte layout, not a Go struct, is the source of truth. Order matches
// the documented compatibility surface: magic, version, id, used,
// width, height, format, stride, online, key, gop, grab_ts,
// encode_begin_ts, encode_end_ts, last_client_ts, key_requested.
const (
	magicValue   uint32 = 0x75737472 // "ustr"
	versionValue uint32 = 2

	offMagic   = 0
	offVersion = offMagic + 4
	offID      = offVersion + 4
	offUsed    = offID + 8
	offWidth   = offUsed + 8
	offHeight  = offWidth + 4
	offFormat  = offHeight + 4
	offStride  = offFormat + 4
	offOnline  = offStride + 4
	offKey     = offOnline + 1
	// 2 bytes of padding after offKey keep offGOP 4-byte aligned.
	offGOP          = offKey + 1 + 2
	offGrabTS       = offGOP + 4
	offEncodeBegin  = offGrabTS + 8
	offEncodeEnd    = offEncodeBegin + 8
	offLastClientTS = offEncodeEnd + 8
	offKeyRequested = offLastClientTS + 8

	headerSize = offKeyRequested + 4
)

// header is a thin accessor over the mmap'd header bytes; no field is
// cached in Go memory; every read/write goes straight to the mapping,
// matching the C struct's "it IS the shared memory" semantics.
type header struct {
	buf []byte
}

func (h header) magic() uint32   { return binary.LittleEndian.Uint32(h.buf[offMagic:]) }
func (h header) version() uint32 { return binary.LittleEndian.Uint32(h.buf[offVersion:]) }
func (h header) id() uint64      { return binary.LittleEndian.Uint64(h.buf[offID:]) }
func (h header) used() uint64    { return binary.LittleEndian.Uint64(h.buf[offUsed:]) }
func (h header) width() uint32   { return binary.LittleEndian.Uint32(h.buf[offWidth:]) }
func (h header) height() uint32  { return binary.LittleEndian.Uint32(h.buf[offHeight:]) }
func (h header) format() uint32  { return binary.LittleEndian.Uint32(h.buf[offFormat:]) }
func (h header) stride() uint32  { return binary.LittleEndian.Uint32(h.buf[offStride:]) }
func (h header) online() bool    { return h.buf[offOnline] != 0 }
func (h header) key() bool       { return h.buf[offKey] != 0 }
func (h header) gop() uint32     { return binary.LittleEndian.Uint32(h.buf[offGOP:]) }

func (h header) grabTS() float64        { return readFloat(h.buf, offGrabTS) }
func (h header) encodeBeginTS() float64 { return readFloat(h.buf, offEncodeBegin) }
func (h header) encodeEndTS() float64   { return readFloat(h.buf, offEncodeEnd) }

// lastClientTS is sampled by the producer without holding the lock;
// torn reads are acceptable (see Sink.ServerCheck).
func (h header) lastClientTS() float64 { return readFloat(h.buf, offLastClientTS) }
func (h header) keyRequested() bool {
	return binary.LittleEndian.Uint32(h.buf[offKeyRequested:]) != 0
}

func (h header) setMagic(v uint32)   { binary.LittleEndian.PutUint32(h.buf[offMagic:], v) }
func (h header) setVersion(v uint32) { binary.LittleEndian.PutUint32(h.buf[offVersion:], v) }
func (h header) setID(v uint64)      { binary.LittleEndian.PutUint64(h.buf[offID:], v) }
func (h header) setUsed(v uint64)    { binary.LittleEndian.PutUint64(h.buf[offUsed:], v) }
func (h header) setWidth(v uint32)   { binary.LittleEndian.PutUint32(h.buf[offWidth:], v) }
func (h header) setHeight(v uint32)  { binary.LittleEndian.PutUint32(h.buf[offHeight:], v) }
func (h header) setFormat(v uint32)  { binary.LittleEndian.PutUint32(h.buf[offFormat:], v) }
func (h header) setStride(v uint32)  { binary.LittleEndian.PutUint32(h.buf[offStride:], v) }
func (h header) setOnline(v bool)    { h.buf[offOnline] = boolToByte(v) }
func (h header) setKey(v bool)       { h.buf[offKey] = boolToByte(v) }
func (h header) setGOP(v uint32)     { binary.LittleEndian.PutUint32(h.buf[offGOP:], v) }

func (h header) setGrabTS(v float64)        { writeFloat(h.buf, offGrabTS, v) }
func (h header) setEncodeBeginTS(v float64) { writeFloat(h.buf, offEncodeBegin, v) }
func (h header) setEncodeEndTS(v float64)   { writeFloat(h.buf, offEncodeEnd, v) }
func (h header) setLastClientTS(v float64)  { writeFloat(h.buf, offLastClientTS, v) }
func (h header) setKeyRequested(v bool) {
	binary.LittleEndian.PutUint32(h.buf[offKeyRequested:], boolToUint32(v))
}

// data returns the payload region following the header.
func (h header) data() []byte { return h.buf[headerSize:] }

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func boolToByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func readFloat(buf []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
}

func writeFloat(buf []byte, off int, v float64) {
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
}
