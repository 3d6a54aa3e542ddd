// Package stream holds the plain data model shared by every stage of the
// engine — StreamState and ObsMeta from spec §3 — without importing any of
// the stages themselves (ioinput aside, since a stream must own a Backend
// to be read from at all). Keeping this model in its own package lets
// align, calibration, dispatch, kernel and reader all depend on it without
// any of them depending on each other.
package stream

import (
	"github.com/banshee-data/rtics/internal/rtics/ioinput"
	"github.com/banshee-data/rtics/internal/rtics/streambuf"
)

// CalibrateMode selects how the calibration supplier (C6) participates in
// an iteration.
type CalibrateMode int

const (
	CalibrateNone CalibrateMode = iota
	CalibrateGenerateOnly
	CalibrateApply
)

// State is one input stream's mutable position and ownership record (spec
// §3 StreamState).
type State struct {
	ID      int
	Backend ioinput.Backend
	Buf     *streambuf.Buffer

	// PortPacketLength is the fixed wire size of one packet on this
	// stream: header.Size + payload length.
	PortPacketLength int
	// PortRawBeamlets is the beamlet count this stream carries on the
	// wire, independent of any user-specified beamlet sub-range.
	PortRawBeamlets int

	// BaseBeamlet/UpperBeamlet is the half-open sub-range [Base, Upper)
	// of this stream's raw beamlets that contribute to output, after
	// applying the observation's global beamlet limits.
	BaseBeamlet  int
	UpperBeamlet int
	// CumulativeBeamlets is the sum of (Upper-Base) for every stream
	// before this one, i.e. this stream's starting offset in the
	// combined output channel axis.
	CumulativeBeamlets int

	LastPacketNumber    uint64
	LastDroppedPackets  int
	TotalDroppedPackets uint64

	// EOF is set once a refill of this stream's buffer returns no bytes at
	// all, and is never cleared. Reads are still attempted on later
	// iterations; the driver reports EndOfData once every stream has EOF set.
	EOF bool
}

// BeamletSpan returns the number of beamlets this stream contributes to
// the combined output channel axis.
func (s *State) BeamletSpan() int { return s.UpperBeamlet - s.BaseBeamlet }

// Meta is the observation-wide configuration and progress record (spec §3
// ObsMeta), shared read-only by every component except the driver, which
// owns the right to mutate PacketsRead, LastPacket, ClockBit and
// OutputBitMode.
type Meta struct {
	NumStreams          int
	PacketsPerIteration int // M

	InputBitMode   int // literal sample width in bits: 4, 8, or 16 (see header.BitMode.Bits)
	OutputBitMode  int // bits; 32 means float32
	ProcessingMode int
	Calibrate      CalibrateMode

	TotalRawBeamlets  int
	TotalProcBeamlets int

	LastPacket uint64

	PacketsRead    uint64
	PacketsReadMax uint64 // 0 means unbounded

	ClockBit             bool
	ReplayDroppedPackets bool

	DecimationFactor int // 1 means no decimation
}

// SplitBeamletRange computes BaseBeamlet/UpperBeamlet for every stream from
// a single global [lower, upper) beamlet limit on the concatenated raw
// beamlet axis: each stream keeps the part of that range which falls within
// its own raw beamlets, clipped to [0, PortRawBeamlets] (SPEC_FULL §3: supplemented
// from original_source, since spec.md names BaseBeamlet/UpperBeamlet but
// does not specify how a global limit maps onto them).
func SplitBeamletRange(streams []*State, lower, upper int) {
	cum := 0
	for _, s := range streams {
		rawLower := cum
		base := lower - rawLower
		if base < 0 {
			base = 0
		}
		if base > s.PortRawBeamlets {
			base = s.PortRawBeamlets
		}
		top := upper - rawLower
		if top < 0 {
			top = 0
		}
		if top > s.PortRawBeamlets {
			top = s.PortRawBeamlets
		}
		s.BaseBeamlet = base
		s.UpperBeamlet = top
		cum += s.PortRawBeamlets
	}
	cumProc := 0
	for _, s := range streams {
		s.CumulativeBeamlets = cumProc
		cumProc += s.BeamletSpan()
	}
}
