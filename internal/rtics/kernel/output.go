package kernel

import (
	"encoding/binary"
	"math"
)

// Width identifies the byte width of one scalar in an output array.
type Width int

const (
	Width8  Width = 1
	Width16 Width = 2
	Width32 Width = 4 // always float32
)

// WriteInt stores v, truncated to width, at scalar index idx of dst.
func WriteInt(dst []byte, idx int, width Width, v int32) {
	switch width {
	case Width8:
		dst[idx] = byte(int8(v))
	case Width16:
		binary.BigEndian.PutUint16(dst[idx*2:idx*2+2], uint16(int16(v)))
	default:
		panic("kernel: WriteInt called with a non-integer width")
	}
}

// WriteFloat32 stores v as a big-endian float32 at scalar index idx of dst.
func WriteFloat32(dst []byte, idx int, v float32) {
	binary.BigEndian.PutUint32(dst[idx*4:idx*4+4], math.Float32bits(v))
}

// ReadFloat32 reads a big-endian float32 at scalar index idx of src,
// needed by the decimation accumulator to read back a partially summed
// Stokes value before adding the next contribution.
func ReadFloat32(src []byte, idx int) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(src[idx*4 : idx*4+4]))
}

// DecoderFor returns the sample decoder matching a packet's input bit
// mode.
func DecoderFor(bitMode int) Decoder {
	switch bitMode {
	case 4:
		return Decode4
	case 16:
		return Decode16
	default:
		return Decode8
	}
}

// OutWidthFor returns the byte width raw (non-Stokes, non-calibrated)
// layouts use for a given input bit mode: unchanged for 8/16-bit input,
// widened to a full byte for 4-bit input (spec §4.7: "OutSample: same as
// input, or widened to 8 (for 4-bit raw paths)").
func OutWidthFor(bitMode int) Width {
	switch bitMode {
	case 16:
		return Width16
	default:
		return Width8
	}
}
