// Package header decodes and validates the 16-byte per-packet header
// produced by a radio-telescope digital backend (RSP board) and derives the
// monotonic packet number used to align parallel streams onto a common
// timeline.
package header

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/rtics/internal/rtics/rerr"
)

// Size is the fixed wire length of a packet header in bytes.
const Size = 16

// BitMode identifies the sample width carried by a packet's payload.
type BitMode uint8

const (
	BitMode16 BitMode = 0
	BitMode8  BitMode = 1
	BitMode4  BitMode = 2
	// bitModeInvalid (3) is a reserved, never-valid encoding.
	bitModeInvalid BitMode = 3
)

// Bits returns the literal sample bit-width a wire BitMode selector
// encodes (16/8/4), as used everywhere outside this package that reasons
// about sample widths in bits rather than the wire selector value.
func (m BitMode) Bits() int {
	switch m {
	case BitMode16:
		return 16
	case BitMode8:
		return 8
	case BitMode4:
		return 4
	default:
		return 0
	}
}

// SampleWidthBytes returns the per-sample payload width in bytes (may be
// fractional for 4-bit mode, where two samples share one byte).
func (m BitMode) SampleWidthBytes() float64 {
	switch m {
	case BitMode16:
		return 2
	case BitMode8:
		return 1
	case BitMode4:
		return 0.5
	default:
		return 0
	}
}

const (
	// timeSlicesPerPacket is the only legal value of byte[7]; every packet
	// in this protocol version carries exactly 16 time samples.
	timeSlicesPerPacket = 16

	// maxBeamletCount bounds byte[6] against known RSP hardware limits.
	maxBeamletCount = 244

	// minProtocolVersion is the lowest header version this codec accepts.
	minProtocolVersion = 3

	// epoch2008Unix is the earliest timestamp this protocol considers
	// valid (the RSP epoch predates general deployment of this format).
	epoch2008Unix = 1199145600 // 2008-01-01T00:00:00Z

	// maxSequenceBound is a loose upper bound on the per-second sequence
	// counter, computed at the faster (200MHz) clock rate so it is never
	// tighter than the true bound for a 160MHz stream.
	maxSequenceBound = 200_000_000 / 1024

	// sourceByteOffset is where the clock/bit-mode/error/synthetic bitfield
	// lives; bytes 1 and 3 of the header are reserved padding surrounding it.
	sourceByteOffset = 2

	bitClock     = 1 << 0
	bitModeLo    = 1 << 1
	bitModeHi    = 1 << 2
	bitReplay    = 1 << 6 // "replay marker" padding bit: warned, not fatal
	bitErrorSynt = 1 << 7 // errorBit on ingest; synthetic-packet marker on gap-fill
)

// MalformedHeader reports an invariant violation discovered in a packet
// header (see Validate).
func MalformedHeader(format string, args ...interface{}) *rerr.Error {
	return rerr.New(rerr.MalformedHeader, format, args...)
}

// Header is a decoded view over a 16-byte wire header. It does not copy the
// underlying bytes; callers must not mutate the slice while a Header is live.
type Header struct {
	raw []byte
}

// Parse wraps a header-sized byte slice without copying it. The caller is
// responsible for ensuring len(b) >= Size.
func Parse(b []byte) (Header, error) {
	if len(b) < Size {
		return Header{}, fmt.Errorf("header: short buffer: need %d bytes, got %d", Size, len(b))
	}
	return Header{raw: b[:Size]}, nil
}

func (h Header) ProtocolVersion() uint8 { return h.raw[0] }

func (h Header) sourceByte() uint8 { return h.raw[sourceByteOffset] }

// ClockBit reports the sample-clock mode: true = 200MHz, false = 160MHz.
func (h Header) ClockBit() bool { return h.sourceByte()&bitClock != 0 }

// BitModeField decodes the packet's payload sample width selector.
func (h Header) BitModeField() BitMode {
	v := h.sourceByte()
	mode := (v & (bitModeLo | bitModeHi)) >> 1
	return BitMode(mode)
}

func (h Header) ErrorBit() bool        { return h.sourceByte()&bitErrorSynt != 0 }
func (h Header) ReplayMarker() bool    { return h.sourceByte()&bitReplay != 0 }
func (h Header) SyntheticMarker() bool { return h.sourceByte()&bitErrorSynt != 0 }

// StationID returns the station code (raw station id divided by 32, per
// the wire convention).
func (h Header) StationID() uint16 {
	return binary.BigEndian.Uint16(h.raw[4:6]) / 32
}

func (h Header) BeamletCount() uint8   { return h.raw[6] }
func (h Header) TimeSlices() uint8     { return h.raw[7] }
func (h Header) Timestamp() uint32     { return binary.BigEndian.Uint32(h.raw[8:12]) }
func (h Header) Sequence() uint32      { return binary.BigEndian.Uint32(h.raw[12:16]) }

// clockRateMHz returns 160 or 200 depending on ClockBit, matching the
// packetNumber formula's "(160 + 40*clockBit)" term.
func (h Header) clockRateMHz() uint64 {
	if h.ClockBit() {
		return 200
	}
	return 160
}

// PacketNumber derives the monotonic per-stream alignment index from the
// header's timestamp, sequence and clock bit (spec §3).
func (h Header) PacketNumber() uint64 {
	return PacketNumberOf(h.Timestamp(), h.Sequence(), h.ClockBit())
}

// PacketNumberOf computes the packet number from raw fields, so callers can
// derive the number for a synthesized header that was never fully written
// to a buffer.
func PacketNumberOf(timestamp, sequence uint32, clockBit bool) uint64 {
	rate := uint64(160)
	if clockBit {
		rate = 200
	}
	return (uint64(timestamp)*1_000_000*rate+512)/1024/16 + uint64(sequence)/16
}

// PacketTime returns the packet's start time in fractional seconds since
// the protocol epoch.
func (h Header) PacketTime() float64 {
	samplesPerSecond := float64(h.clockRateMHz()) * 1_000_000 / 1024
	return float64(h.Timestamp()) + float64(h.Sequence())/samplesPerSecond
}

// NextSequence returns the sequence value a synthetic follow-on packet (one
// time-slice-group after this one) would carry. It does not handle the
// per-second rollover itself — that is the caller's responsibility, since
// rollover also bumps the timestamp field, which this helper does not own.
func (h Header) NextSequence() uint32 {
	return h.Sequence() + timeSlicesPerPacket
}

// Validate checks the invariants from spec §4.1. It returns a non-nil
// *rerr.Error for any fatal violation, plus a list of non-fatal warnings
// (currently just the replay-marker padding bit).
func (h Header) Validate() (warnings []string, err *rerr.Error) {
	if h.ProtocolVersion() < minProtocolVersion {
		return nil, MalformedHeader("protocol version %d below minimum %d", h.ProtocolVersion(), minProtocolVersion)
	}
	if h.Timestamp() < epoch2008Unix {
		return nil, MalformedHeader("timestamp %d predates protocol epoch", h.Timestamp())
	}
	if h.Sequence() > maxSequenceBound {
		return nil, MalformedHeader("sequence %d exceeds maximum for 200MHz clock", h.Sequence())
	}
	if h.BeamletCount() > maxBeamletCount {
		return nil, MalformedHeader("beamlet count %d exceeds hardware maximum %d", h.BeamletCount(), maxBeamletCount)
	}
	if h.TimeSlices() != timeSlicesPerPacket {
		return nil, MalformedHeader("time slices %d != required %d", h.TimeSlices(), timeSlicesPerPacket)
	}
	if h.BitModeField() == bitModeInvalid {
		return nil, MalformedHeader("bit mode field is the reserved invalid encoding")
	}
	if h.raw[1] != 0 || h.raw[3] != 0 {
		return nil, MalformedHeader("reserved header byte set: byte[1]=%#x byte[3]=%#x", h.raw[1], h.raw[3])
	}
	const definedSourceBits = bitClock | bitModeLo | bitModeHi | bitReplay | bitErrorSynt
	if h.sourceByte()&^definedSourceBits != 0 {
		return nil, MalformedHeader("reserved padding bit set in source byte: %#x", h.sourceByte())
	}
	if h.ErrorBit() {
		return nil, MalformedHeader("error bit set in source byte")
	}
	if h.ReplayMarker() {
		warnings = append(warnings, "replay-marker padding bit set")
	}
	return warnings, nil
}

// Synthetic describes the header fields written into a guard-slot payload
// when a missing packet is gap-filled (spec §4.5, Design Notes §9: "define
// a small struct ... rather than in-place byte patching").
type Synthetic struct {
	Timestamp uint32
	Sequence  uint32
}

// WriteInto serializes the synthetic header's timestamp, sequence and
// synthetic marker onto an existing 16-byte header buffer (bytes 8..15 and
// the source byte's high bit), leaving the other header fields (version,
// station id, beamlet count, time slices) as copied from the template
// packet they are replacing.
func (s Synthetic) WriteInto(raw []byte) {
	raw[sourceByteOffset] |= bitErrorSynt
	binary.BigEndian.PutUint32(raw[8:12], s.Timestamp)
	binary.BigEndian.PutUint32(raw[12:16], s.Sequence)
}
