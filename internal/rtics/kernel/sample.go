package kernel

import "encoding/binary"

// TimeSlices is the fixed number of time samples carried per packet
// (header.TimeSlices() is always validated equal to this).
const TimeSlices = 16

// channelsPerSample is the (Xr, Xi, Yr, Yi) quadruple width.
const channelsPerSample = 4

// nibbleSignExtend is a 256-entry lookup table mapping a packed byte of
// two 4-bit samples (high nibble first) to their sign-extended int8
// values, avoiding a branch per nibble on the per-sample hot path (spec
// §4.7: "sign-extended via a 256-entry lookup").
var nibbleSignExtend [256][2]int8

func init() {
	for b := 0; b < 256; b++ {
		hi := int8(b>>4) << 4 >> 4 // sign-extend low 4 bits of the shifted nibble
		lo := int8(b<<4) >> 4
		nibbleSignExtend[b] = [2]int8{hi, lo}
	}
}

// Decoder reads one (Xr, Xi, Yr, Yi) sample quadruple for time slice ts
// and raw beamlet index b out of a header-stripped packet payload.
type Decoder func(payload []byte, ts, b, portRawBeamlets int) (xr, xi, yr, yi int32)

// PayloadBytes returns the wire payload length of one packet carrying
// portRawBeamlets beamlets at the given sample bit width: TimeSlices time
// samples, each a (Xr,Xi,Yr,Yi) quadruple, packed at bitMode bits/sample
// (4-bit samples share a byte pairwise, so the result is always an exact
// byte count).
func PayloadBytes(bitMode, portRawBeamlets int) int {
	bits := TimeSlices * portRawBeamlets * channelsPerSample * bitMode
	return bits / 8
}

// Decode4 reads a 4-bit-sample payload. Two samples share a byte; within a
// quadruple, successive channels alternate which nibble they occupy.
func Decode4(payload []byte, ts, b, portRawBeamlets int) (xr, xi, yr, yi int32) {
	base := (b*TimeSlices + ts) * channelsPerSample // channel index in nibbles
	return int32(nibbleAt(payload, base)), int32(nibbleAt(payload, base+1)),
		int32(nibbleAt(payload, base+2)), int32(nibbleAt(payload, base+3))
}

func nibbleAt(payload []byte, nibbleIdx int) int8 {
	byteIdx := nibbleIdx / 2
	pair := nibbleSignExtend[payload[byteIdx]]
	if nibbleIdx%2 == 0 {
		return pair[0]
	}
	return pair[1]
}

// Decode8 reads an 8-bit-sample payload.
func Decode8(payload []byte, ts, b, portRawBeamlets int) (xr, xi, yr, yi int32) {
	off := (b*TimeSlices + ts) * channelsPerSample
	return int32(int8(payload[off])), int32(int8(payload[off+1])),
		int32(int8(payload[off+2])), int32(int8(payload[off+3]))
}

// Decode16 reads a 16-bit-sample payload, big-endian per sample (matching
// the header's own big-endian convention; the wire format does not state
// payload sample endianness explicitly, so the header's convention is
// carried over).
func Decode16(payload []byte, ts, b, portRawBeamlets int) (xr, xi, yr, yi int32) {
	off := (b*TimeSlices + ts) * channelsPerSample * 2
	return int32(int16(binary.BigEndian.Uint16(payload[off : off+2]))),
		int32(int16(binary.BigEndian.Uint16(payload[off+2 : off+4]))),
		int32(int16(binary.BigEndian.Uint16(payload[off+4 : off+6]))),
		int32(int16(binary.BigEndian.Uint16(payload[off+6 : off+8])))
}
