package kernel

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/ioinput"
	"github.com/banshee-data/rtics/internal/rtics/streambuf"
	"github.com/banshee-data/rtics/internal/rtics/stream"
)

const portRawBeamlets = 2
const bitMode8 = 8

func packetLen() int {
	return header.Size + TimeSlices*portRawBeamlets*channelsPerSample
}

// nullBackend never supplies more bytes; used once a test has pre-filled a
// buffer directly.
type nullBackend struct{}

func (nullBackend) Read(dst []byte) (int, error) { return 0, nil }
func (nullBackend) Close() error                 { return nil }

func buildPacket(pn uint64, fill int8) []byte {
	raw := make([]byte, packetLen())
	raw[0] = 3
	raw[7] = 16
	ts, seq := pnToFields(pn)
	binary.BigEndian.PutUint32(raw[8:12], ts)
	binary.BigEndian.PutUint32(raw[12:16], seq)
	for i := header.Size; i < len(raw); i++ {
		raw[i] = byte(fill)
	}
	return raw
}

func pnToFields(pn uint64) (timestamp, sequence uint32) {
	const rate = 160
	ts := pn * 1024 * 16 / (1_000_000 * rate)
	for ts > 0 && header.PacketNumberOf(uint32(ts), 0, false) > pn {
		ts--
	}
	base := header.PacketNumberOf(uint32(ts), 0, false)
	return uint32(ts), uint32((pn - base) * 16)
}

func newTestStream(packets [][]byte) *stream.State {
	m := len(packets)
	buf := streambuf.New(m, packetLen())
	for i, p := range packets {
		copy(buf.Packet(i), p)
	}
	buf.SetFilledBytes(m * packetLen())
	return &stream.State{
		ID:               0,
		Backend:          nullBackend{},
		Buf:              buf,
		PortPacketLength: packetLen(),
		PortRawBeamlets:  portRawBeamlets,
		BaseBeamlet:      0,
		UpperBeamlet:     portRawBeamlets,
	}
}

func TestWalkNoLossPreservesOrder(t *testing.T) {
	packets := [][]byte{buildPacket(100, 1), buildPacket(101, 2), buildPacket(102, 3)}
	s := newTestStream(packets)

	var seen []uint64
	res, err := Walk(s, 100, false, func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		seen = append(seen, h.PacketNumber())
		if synthetic {
			t.Errorf("slot %d unexpectedly synthetic", outSlot)
		}
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if res.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", res.Dropped)
	}
	want := []uint64{100, 101, 102}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("slot %d packet number = %d, want %d", i, seen[i], w)
		}
	}
}

func TestWalkGapFillZeroMode(t *testing.T) {
	// packet 101 missing
	packets := [][]byte{buildPacket(100, 1), buildPacket(102, 3)}
	s := newTestStream(packets)

	var synthSlots []int
	_, err := Walk(s, 100, false, func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		if synthetic {
			synthSlots = append(synthSlots, outSlot)
			if !h.SyntheticMarker() {
				t.Errorf("slot %d: synthetic packet missing marker bit", outSlot)
			}
		}
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(synthSlots) != 1 || synthSlots[0] != 1 {
		t.Errorf("synthetic slots = %v, want [1]", synthSlots)
	}
}

func TestWalkReplayModeCopiesPrevious(t *testing.T) {
	packets := [][]byte{buildPacket(100, 7), buildPacket(102, 3)}
	s := newTestStream(packets)

	var gotPayload []byte
	_, err := Walk(s, 100, true, func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		if outSlot == 1 {
			gotPayload = append([]byte(nil), raw[header.Size:]...)
		}
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for _, b := range gotPayload {
		if b != 7 {
			t.Errorf("replayed payload byte = %d, want 7 (copy of previous slot)", b)
			break
		}
	}
}

func TestWalkOutOfOrderPastCorrectsDropCounter(t *testing.T) {
	// Input carries 100, a stray late 99 (out-of-order-in-the-past), then
	// 101; with only 3 buffer slots the last output slot still needs a
	// gap-fill since input is exhausted after 101. The stray 99 decrements
	// the drop counter once, the trailing gap-fill increments it once, so
	// they net to zero even though each happened for a different reason.
	packets := [][]byte{buildPacket(100, 1), buildPacket(99, 9), buildPacket(101, 2)}
	s := newTestStream(packets)

	var synthetics []int
	res, err := Walk(s, 100, false, func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		if synthetic {
			synthetics = append(synthetics, outSlot)
		}
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if res.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0 (stray-past correction balanced by trailing gap-fill)", res.Dropped)
	}
	if len(synthetics) != 1 || synthetics[0] != 2 {
		t.Errorf("synthetic slots = %v, want [2]", synthetics)
	}
}

func TestStokesIdentity(t *testing.T) {
	xr, xi, yr, yi := int32(3), int32(-2), int32(5), int32(1)
	i, q, u, v := stokes(xr, xi, yr, yi)
	lhs := i * i
	rhs := q*q + u*u + v*v
	if math.Abs(lhs-rhs) > 1e-6 {
		t.Errorf("I^2 = %v, Q^2+U^2+V^2 = %v, want equal", lhs, rhs)
	}
}

func TestStokesZeroInputYieldsZero(t *testing.T) {
	i, q, u, v := stokes(0, 0, 0, 0)
	if i != 0 || q != 0 || u != 0 || v != 0 {
		t.Errorf("zero input stokes = (%v,%v,%v,%v), want all zero", i, q, u, v)
	}
}

func TestDecode4SignExtension(t *testing.T) {
	// byte 0xF8 -> high nibble 0b1111 (-1), low nibble 0b1000 (-8)
	payload := []byte{0xF8, 0x00}
	hi := nibbleAt(payload, 0)
	lo := nibbleAt(payload, 1)
	if hi != -1 {
		t.Errorf("high nibble = %d, want -1", hi)
	}
	if lo != -8 {
		t.Errorf("low nibble = %d, want -8", lo)
	}
}

func TestDecimatedLengthMatchesBoundaryScenario(t *testing.T) {
	// Boundary scenario 5: 64 packets, decimation 2 -> length = 64*16/2.
	got := DecimatedLength(64, 2)
	want := 64 * 16 / 2
	if got != want {
		t.Errorf("DecimatedLength = %d, want %d", got, want)
	}
}

func TestStokesDecimatedSumsConsecutiveSamples(t *testing.T) {
	g := Geometry{Base: 0, Upper: 1, Cumulative: 0, PortRawBeamlets: 1, TotalProcBeamlets: 1, PacketsPerIteration: 1, BitMode: 8}
	out := make([]byte, 4*DecimatedLength(1, 2))
	emit := StokesDecimated(out, g, StokesI, 2)

	raw := make([]byte, header.Size+TimeSlices*channelsPerSample)
	raw[0] = 3
	raw[7] = 16
	// ts0: (1,0,0,0) -> I=1 ; ts1: (2,0,0,0) -> I=4
	raw[header.Size+0] = 1
	raw[header.Size+(1*channelsPerSample)+0] = 2

	emit(0, raw, header.Header{}, false)

	got := ReadFloat32(out, 0)
	want := float32(1*1 + 2*2)
	if got != want {
		t.Errorf("decimated bucket 0 = %v, want %v", got, want)
	}
}

// TestDecodeIsBeamletMajor pins the wire layout of Decode4/Decode8/Decode16:
// a beamlet's TimeSlices samples are contiguous (beamlet-major, time-minor),
// matching udp_copySplitPols's per-beamlet outer loop over time slices
// (lofar_udp_backends.hpp). Each case fills distinct values at two
// (ts, beamlet) coordinates so a transposed offset formula would read the
// wrong quadruple instead of merely rescaling it.
func TestDecodeIsBeamletMajor(t *testing.T) {
	const beamlets = 3

	t.Run("Decode8", func(t *testing.T) {
		payload := make([]byte, beamlets*TimeSlices*channelsPerSample)
		setQuad8 := func(ts, b int, xr, xi, yr, yi int8) {
			off := (b*TimeSlices + ts) * channelsPerSample
			payload[off], payload[off+1], payload[off+2], payload[off+3] = byte(xr), byte(xi), byte(yr), byte(yi)
		}
		setQuad8(0, 0, 1, 2, 3, 4)
		setQuad8(5, 2, 10, 20, 30, 40)

		xr, xi, yr, yi := Decode8(payload, 0, 0, beamlets)
		if xr != 1 || xi != 2 || yr != 3 || yi != 4 {
			t.Errorf("Decode8(ts=0,b=0) = (%d,%d,%d,%d), want (1,2,3,4)", xr, xi, yr, yi)
		}
		xr, xi, yr, yi = Decode8(payload, 5, 2, beamlets)
		if xr != 10 || xi != 20 || yr != 30 || yi != 40 {
			t.Errorf("Decode8(ts=5,b=2) = (%d,%d,%d,%d), want (10,20,30,40)", xr, xi, yr, yi)
		}
	})

	t.Run("Decode4", func(t *testing.T) {
		payload := make([]byte, (beamlets*TimeSlices*channelsPerSample)/2)
		setNibble := func(nibbleIdx int, v int8) {
			byteIdx := nibbleIdx / 2
			if nibbleIdx%2 == 0 {
				payload[byteIdx] = (payload[byteIdx] & 0x0F) | (byte(v) << 4)
			} else {
				payload[byteIdx] = (payload[byteIdx] & 0xF0) | (byte(v) & 0x0F)
			}
		}
		setQuad4 := func(ts, b int, xr, xi, yr, yi int8) {
			base := (b*TimeSlices + ts) * channelsPerSample
			setNibble(base, xr)
			setNibble(base+1, xi)
			setNibble(base+2, yr)
			setNibble(base+3, yi)
		}
		setQuad4(0, 0, 1, 2, 3, 4)
		setQuad4(5, 2, 7, -8, 2, -1)

		xr, xi, yr, yi := Decode4(payload, 0, 0, beamlets)
		if xr != 1 || xi != 2 || yr != 3 || yi != 4 {
			t.Errorf("Decode4(ts=0,b=0) = (%d,%d,%d,%d), want (1,2,3,4)", xr, xi, yr, yi)
		}
		xr, xi, yr, yi = Decode4(payload, 5, 2, beamlets)
		if xr != 7 || xi != -8 || yr != 2 || yi != -1 {
			t.Errorf("Decode4(ts=5,b=2) = (%d,%d,%d,%d), want (7,-8,2,-1)", xr, xi, yr, yi)
		}
	})

	t.Run("Decode16", func(t *testing.T) {
		payload := make([]byte, beamlets*TimeSlices*channelsPerSample*2)
		setQuad16 := func(ts, b int, xr, xi, yr, yi int16) {
			off := (b*TimeSlices + ts) * channelsPerSample * 2
			binary.BigEndian.PutUint16(payload[off:], uint16(xr))
			binary.BigEndian.PutUint16(payload[off+2:], uint16(xi))
			binary.BigEndian.PutUint16(payload[off+4:], uint16(yr))
			binary.BigEndian.PutUint16(payload[off+6:], uint16(yi))
		}
		setQuad16(0, 0, 100, 200, 300, 400)
		setQuad16(5, 2, -100, -200, -300, -400)

		xr, xi, yr, yi := Decode16(payload, 0, 0, beamlets)
		if xr != 100 || xi != 200 || yr != 300 || yi != 400 {
			t.Errorf("Decode16(ts=0,b=0) = (%d,%d,%d,%d), want (100,200,300,400)", xr, xi, yr, yi)
		}
		xr, xi, yr, yi = Decode16(payload, 5, 2, beamlets)
		if xr != -100 || xi != -200 || yr != -300 || yi != -400 {
			t.Errorf("Decode16(ts=5,b=2) = (%d,%d,%d,%d), want (-100,-200,-300,-400)", xr, xi, yr, yi)
		}
	})
}

var _ = ioinput.Backend(nullBackend{})
