// Package reader implements the per-iteration driver (spec §4.9, component
// C9): it owns a Reader's streams and ObsMeta, runs one alignment +
// gap-fill + dispatch cycle per Step call, and advances packetsRead /
// lastPacket exactly as the teacher's own long-running collector loops
// (cmd/lidar, server.go's HTTP/event loop) drive one iteration at a time
// behind a narrow Step-like entry point.
package reader

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/banshee-data/rtics/internal/rtics/align"
	"github.com/banshee-data/rtics/internal/rtics/calibration"
	"github.com/banshee-data/rtics/internal/rtics/dispatch"
	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/kernel"
	"github.com/banshee-data/rtics/internal/rtics/rerr"
	"github.com/banshee-data/rtics/internal/rtics/stream"
)

// Progress reports the outcome of one Step call: the non-fatal "ok, with
// these observations" result path (spec §4.9: "emit step-return <= 0 on
// benign conditions... >= 1 on fatal", modeled here as a Progress plus a
// nil error on success, or a *rerr.Error on a fatal exit).
type Progress struct {
	SessionID   uuid.UUID
	LastPacket  uint64
	PacketsRead uint64
	// Dropped holds one entry per stream: that stream's running drop
	// balance for this iteration (spec §4.5).
	Dropped []int
	// Exit is set instead of running a step at all when a benign
	// terminal condition is reached (PacketCapReached, EndOfData); Dropped
	// and LastPacket are zero in that case.
	Exit rerr.Kind
}

// Sink receives a Progress report after every successful Step, for a
// caller that wants to persist iteration history without reading Reader's
// internals directly.
type Sink interface {
	Record(Progress) error
}

// Reader drives one observation end-to-end: alignment, gap-fill, optional
// calibration, and kernel dispatch, advancing ObsMeta in place exactly as
// spec §3 describes ("ObsMeta fields mutated by the driver... untouched by
// kernels").
type Reader struct {
	Meta    *stream.Meta
	Streams []*stream.State

	align *align.Engine
	cal   *calibration.Supplier
	sel   dispatch.Selector
	sink  Sink

	// outputs holds the shared channel-axis output arrays every non-raw
	// family writes into; rawOutputs holds one independent array per
	// stream for the mode 0/1 family, which copies verbatim per-packet
	// bytes rather than addressing a combined channel axis. Exactly one
	// of the two is populated.
	outputs    [][]byte
	rawOutputs [][]byte

	sessionID uuid.UUID
}

// Open primes every stream far enough to read its first packet number,
// establishes the observation's starting target as the furthest-ahead of
// those first packets (so no stream is asked to rewind), allocates output
// arrays sized for the configured processing mode, and returns a Reader
// ready for repeated Step calls.
func Open(meta *stream.Meta, streams []*stream.State, cal *calibration.Supplier, sink Sink) (*Reader, error) {
	if len(streams) != meta.NumStreams {
		return nil, fmt.Errorf("reader: meta.NumStreams=%d but %d streams given", meta.NumStreams, len(streams))
	}
	sel, err := dispatch.Resolve(meta.ProcessingMode)
	if err != nil {
		return nil, err
	}

	var target uint64
	haveAny := false
	for _, s := range streams {
		pn, ok, err := align.Prime(s)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.EOF = true
			continue
		}
		if !haveAny || pn > target {
			target = pn
			haveAny = true
		}
	}
	if !haveAny {
		return nil, rerr.New(rerr.EndOfData, "reader: every stream exhausted before producing a single packet")
	}
	meta.LastPacket = target

	r := &Reader{
		Meta:      meta,
		Streams:   streams,
		align:     align.New(),
		cal:       cal,
		sel:       sel,
		sink:      sink,
		sessionID: uuid.New(),
	}
	if err := r.allocateOutputs(); err != nil {
		return nil, err
	}
	return r, nil
}

// allocateOutputs sizes the reader's output arrays for its fixed
// processing mode: per-stream for the raw-copy family, shared across the
// combined channel axis for everything else (spec §4.7's OutSample rule
// decides the scalar width).
func (r *Reader) allocateOutputs() error {
	m := r.Meta
	calibrated := m.Calibrate == stream.CalibrateApply

	switch r.sel.Family {
	case dispatch.FamilyRawHeader, dispatch.FamilyRawNoHeader:
		r.rawOutputs = make([][]byte, len(r.Streams))
		for i, s := range r.Streams {
			n := m.PacketsPerIteration * s.PortPacketLength
			if r.sel.Family == dispatch.FamilyRawNoHeader {
				n = m.PacketsPerIteration * (s.PortPacketLength - header.Size)
			}
			r.rawOutputs[i] = make([]byte, n)
		}
		m.OutputBitMode = m.InputBitMode
	default:
		width := dispatch.OutputWidth(r.sel, m.InputBitMode, calibrated)
		scalars := dispatch.OutputLength(r.sel, m.PacketsPerIteration, m.TotalProcBeamlets)
		count := dispatch.OutputCount(r.sel)
		r.outputs = make([][]byte, count)
		for i := range r.outputs {
			r.outputs[i] = make([]byte, scalars*int(width))
		}
		m.OutputBitMode = int(width) * 8
	}
	return nil
}

// Outputs returns the reader's current output arrays: the per-stream raw
// arrays for modes 0/1, or the shared channel-axis arrays otherwise. The
// slice and its contents are only valid until the next Step call.
func (r *Reader) Outputs() [][]byte {
	if r.rawOutputs != nil {
		return r.rawOutputs
	}
	return r.outputs
}

// Step runs one iteration: align every stream to meta.LastPacket, refresh
// calibration if configured, gap-fill and dispatch each stream's window
// into the output arrays, then advance meta.LastPacket/PacketsRead by M
// (spec §4.9).
func (r *Reader) Step() (Progress, error) {
	m := r.Meta

	if m.PacketsReadMax > 0 && m.PacketsRead+uint64(m.PacketsPerIteration) > m.PacketsReadMax {
		return Progress{Exit: rerr.PacketCapReached}, nil
	}
	if r.allStreamsEOF() {
		return Progress{Exit: rerr.EndOfData}, nil
	}

	res, err := r.align.Align(r.Streams, m.LastPacket)
	if err != nil {
		return Progress{}, err
	}
	for i, s := range r.Streams {
		filled := s.Buf.FilledPackets()
		shift := res.Shift[i]
		if filled > shift {
			s.Buf.Shift(filled - shift)
		} else {
			s.Buf.SetFilledBytes(0)
		}
	}
	m.ClockBit = res.ClockBit
	m.LastPacket = res.FinalTarget

	jonesFor, err := r.refreshCalibration()
	if err != nil {
		return Progress{}, err
	}

	if r.sel.DecimationShift > 0 {
		// Decimated Stokes accumulates by read-add-write; the output
		// arrays are reused across iterations and must start zeroed.
		for _, out := range r.outputs {
			clear(out)
		}
	}

	drops := make([]int, len(r.Streams))
	var worst error
	for i, s := range r.Streams {
		g := dispatch.Geometry(s, m)
		outs := r.outputs
		if r.rawOutputs != nil {
			outs = [][]byte{r.rawOutputs[i]}
		}
		emit, err := dispatch.Build(m.ProcessingMode, m, g, s.PortPacketLength, outs, jonesFor)
		if err != nil {
			return Progress{}, err
		}

		wres, werr := kernel.Walk(s, m.LastPacket, m.ReplayDroppedPackets, emit)
		if werr != nil {
			worst = rerr.Worse(worst, werr)
			continue
		}

		// Free the portion of the buffer Walk actually consumed, carrying
		// any read-ahead surplus to the front so the next iteration's
		// alignment pass can refill behind it (spec §4.3/§4.9: the buffer
		// is sized for exactly one iteration's worth of new data).
		if filled := s.Buf.FilledPackets(); filled > wres.Consumed {
			s.Buf.Shift(filled - wres.Consumed)
		} else {
			s.Buf.SetFilledBytes(0)
		}

		s.LastDroppedPackets = wres.Dropped
		if wres.Dropped > 0 {
			s.TotalDroppedPackets += uint64(wres.Dropped)
		}
		s.LastPacketNumber = wres.LastPacketNumber
		drops[i] = wres.Dropped
	}
	if worst != nil {
		return Progress{}, worst
	}

	m.LastPacket += uint64(m.PacketsPerIteration)
	m.PacketsRead += uint64(m.PacketsPerIteration)

	prog := Progress{
		SessionID:   r.sessionID,
		LastPacket:  m.LastPacket,
		PacketsRead: m.PacketsRead,
		Dropped:     drops,
	}
	if r.sink != nil {
		if err := r.sink.Record(prog); err != nil {
			log.Printf("reader: metrics sink error: %v", err)
		}
	}
	return prog, nil
}

func (r *Reader) allStreamsEOF() bool {
	for _, s := range r.Streams {
		if !s.EOF {
			return false
		}
	}
	return true
}

// refreshCalibration advances the calibration supplier once per iteration
// (spec §4.6: "step increments once per iteration") and, only when the
// observation is configured to apply calibration rather than merely
// generate it, returns a resolver from combined-channel beamlet index to
// that beamlet's Jones matrix for the current step.
func (r *Reader) refreshCalibration() (kernel.JonesFor, error) {
	if r.cal == nil || r.Meta.Calibrate == stream.CalibrateNone {
		return nil, nil
	}
	if err := r.cal.Advance(); err != nil {
		return nil, err
	}
	if r.Meta.Calibrate != stream.CalibrateApply {
		return nil, nil
	}
	table := r.cal.Table()
	step := r.cal.Step()
	return func(beamlet int) []float32 { return table.Jones(step, beamlet) }, nil
}

// Close releases every stream's backend.
func (r *Reader) Close() error {
	var first error
	for _, s := range r.Streams {
		if err := s.Backend.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
