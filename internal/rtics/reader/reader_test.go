package reader

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/rtics/internal/rtics/calibration"
	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/kernel"
	"github.com/banshee-data/rtics/internal/rtics/rerr"
	"github.com/banshee-data/rtics/internal/rtics/streambuf"
	"github.com/banshee-data/rtics/internal/rtics/stream"
)

const (
	testPortRawBeamlets   = 2
	testChannelsPerSample = 4 // Xr,Xi,Yr,Yi
)

func testPacketLen() int {
	return header.Size + kernel.TimeSlices*testPortRawBeamlets*testChannelsPerSample
}

// memBackend serves packets from a pre-built in-memory stream, one Read
// call at a time, reporting a short read once exhausted.
type memBackend struct {
	data []byte
	pos  int
}

func (b *memBackend) Read(dst []byte) (int, error) {
	n := copy(dst, b.data[b.pos:])
	b.pos += n
	return n, nil
}

func (b *memBackend) Close() error { return nil }

func pnToFields(pn uint64, clockBit bool) (timestamp, sequence uint32) {
	rate := uint64(160)
	if clockBit {
		rate = 200
	}
	ts := pn * 1024 * 16 / (1_000_000 * rate)
	for ts > 0 && header.PacketNumberOf(uint32(ts), 0, clockBit) > pn {
		ts--
	}
	base := header.PacketNumberOf(uint32(ts), 0, clockBit)
	return uint32(ts), uint32((pn - base) * 16)
}

func buildPacket(pn uint64, fill byte) []byte {
	return buildPacketClocked(pn, fill, false)
}

func buildPacketClocked(pn uint64, fill byte, clockBit bool) []byte {
	raw := make([]byte, testPacketLen())
	raw[0] = 3
	raw[7] = 16
	if clockBit {
		raw[2] = 1
	}
	ts, seq := pnToFields(pn, clockBit)
	binary.BigEndian.PutUint32(raw[8:12], ts)
	binary.BigEndian.PutUint32(raw[12:16], seq)
	for i := header.Size; i < len(raw); i++ {
		raw[i] = fill
	}
	return raw
}

// newTestStreamState builds one stream backed by consecutive packets
// starting at startPN, with no losses.
func newTestStreamState(id int, startPN uint64, count int, fill byte) *stream.State {
	return newTestStreamStateClocked(id, startPN, count, fill, false)
}

func newTestStreamStateClocked(id int, startPN uint64, count int, fill byte, clockBit bool) *stream.State {
	var data []byte
	for i := 0; i < count; i++ {
		data = append(data, buildPacketClocked(startPN+uint64(i), fill, clockBit)...)
	}
	return &stream.State{
		ID:               id,
		Backend:          &memBackend{data: data},
		Buf:              streambuf.New(4, testPacketLen()),
		PortPacketLength: testPacketLen(),
		PortRawBeamlets:  testPortRawBeamlets,
		BaseBeamlet:      0,
		UpperBeamlet:     testPortRawBeamlets,
	}
}

func testMeta(mode int, m int) *stream.Meta {
	return &stream.Meta{
		NumStreams:          1,
		PacketsPerIteration: m,
		InputBitMode:        8,
		ProcessingMode:      mode,
		Calibrate:           stream.CalibrateNone,
		TotalProcBeamlets:   testPortRawBeamlets,
	}
}

func TestOpenPrimesToFurthestAheadStream(t *testing.T) {
	s0 := newTestStreamState(0, 10, 4, 1)
	s1 := newTestStreamState(1, 12, 4, 1)
	meta := testMeta(0, 4)
	meta.NumStreams = 2
	meta.TotalProcBeamlets = testPortRawBeamlets * 2
	streams := []*stream.State{s0, s1}
	stream.SplitBeamletRange(streams, 0, testPortRawBeamlets*2)

	r, err := Open(meta, streams, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if meta.LastPacket != 12 {
		t.Errorf("LastPacket = %d, want 12 (furthest-ahead first packet)", meta.LastPacket)
	}
	if r.Outputs() == nil {
		t.Error("expected allocated outputs")
	}
}

func TestStepNoLossAdvancesMetaAndZeroDrops(t *testing.T) {
	s := newTestStreamState(0, 0, 8, 1)
	meta := testMeta(100, 4) // Stokes I, uncalibrated
	streams := []*stream.State{s}

	r, err := Open(meta, streams, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	prog, err := r.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if prog.Exit != "" {
		t.Errorf("Exit = %v, want none", prog.Exit)
	}
	if prog.Dropped[0] != 0 {
		t.Errorf("Dropped[0] = %d, want 0", prog.Dropped[0])
	}
	if meta.PacketsRead != 4 {
		t.Errorf("PacketsRead = %d, want 4", meta.PacketsRead)
	}
	if meta.LastPacket != 4 {
		t.Errorf("LastPacket = %d, want 4", meta.LastPacket)
	}
}

func TestStepPacketCapReached(t *testing.T) {
	s := newTestStreamState(0, 0, 8, 1)
	meta := testMeta(100, 4)
	meta.PacketsReadMax = 4
	streams := []*stream.State{s}

	r, err := Open(meta, streams, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Step(); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	prog, err := r.Step()
	if err != nil {
		t.Fatalf("second Step: %v", err)
	}
	if prog.Exit != rerr.PacketCapReached {
		t.Errorf("Exit = %v, want PacketCapReached", prog.Exit)
	}
}

func TestStepEndOfData(t *testing.T) {
	// Exactly one iteration's worth of real data: the second Step gap-fills
	// a full window of synthetic packets (the backend is exhausted mid-call,
	// discovered while aligning onto the next target) rather than exiting
	// early, and EndOfData is only reported once a Step begins with every
	// stream already marked exhausted.
	s := newTestStreamState(0, 0, 4, 1)
	meta := testMeta(100, 4)
	streams := []*stream.State{s}

	r, err := Open(meta, streams, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Step(); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	second, err := r.Step()
	if err != nil {
		t.Fatalf("second Step: %v", err)
	}
	if second.Exit != "" {
		t.Errorf("second Step Exit = %v, want none (gap-filled, not yet exhausted)", second.Exit)
	}
	if second.Dropped[0] != 4 {
		t.Errorf("second Step Dropped[0] = %d, want 4 (fully synthetic window)", second.Dropped[0])
	}
	third, err := r.Step()
	if err != nil {
		t.Fatalf("third Step: %v", err)
	}
	if third.Exit != rerr.EndOfData {
		t.Errorf("third Step Exit = %v, want EndOfData", third.Exit)
	}
}

func TestStepRawCopySizesPerStreamOutputs(t *testing.T) {
	s := newTestStreamState(0, 0, 4, 9)
	meta := testMeta(1, 4) // raw, no header
	streams := []*stream.State{s}

	r, err := Open(meta, streams, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wantLen := 4 * (testPacketLen() - header.Size)
	if len(r.rawOutputs[0]) != wantLen {
		t.Fatalf("rawOutputs[0] len = %d, want %d", len(r.rawOutputs[0]), wantLen)
	}
	if _, err := r.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	for i, b := range r.rawOutputs[0] {
		if b != 9 {
			t.Fatalf("rawOutputs[0][%d] = %d, want 9 (verbatim payload copy)", i, b)
			break
		}
	}
}

func writeJonesFile(t *testing.T, steps, beamlets int) string {
	t.Helper()
	vals := []float32{float32(steps), float32(beamlets)}
	identity := []float32{1, 0, 0, 0, 0, 0, 1, 0}
	for i := 0; i < steps*beamlets; i++ {
		vals = append(vals, identity...)
	}
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	path := filepath.Join(t.TempDir(), "jones.bin")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStepCalibrationReachesKernel(t *testing.T) {
	// Calibration is only supported on a 200MHz (clockBit=true) stream;
	// 160MHz combined with calibration is explicitly rejected.
	s := newTestStreamStateClocked(0, 0, 4, 1, true)
	meta := testMeta(100, 4) // Stokes I
	meta.Calibrate = stream.CalibrateApply
	streams := []*stream.State{s}

	src := calibration.NewFileSource(writeJonesFile(t, 1, testPortRawBeamlets))
	sup := calibration.NewSupplier(src, 1)

	r, err := Open(meta, streams, sup, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if sup.Table() == nil {
		t.Fatal("expected calibration table to be generated during Step")
	}
}
