package kernel

import (
	"github.com/banshee-data/rtics/internal/rtics/header"
)

// Geometry carries the per-stream addressing constants an emit function
// needs to place a sample in the shared output arrays (spec §4.8's
// portBeamlets/cumulative/totalProcBeamlets terms).
type Geometry struct {
	Base, Upper        int // this stream's raw beamlet sub-range [Base, Upper)
	Cumulative         int // this stream's starting offset on the combined channel axis
	PortRawBeamlets    int // raw beamlets on the wire for this stream
	TotalProcBeamlets  int // T: combined channel axis width across all streams
	PacketsPerIteration int // M
	BitMode            int // input sample width in bits: 4, 8, or 16
}

func (g Geometry) span() int { return g.Upper - g.Base }

// RawCopyWithHeader implements mode 0: verbatim per-packet copy including
// the 16-byte header, into a single per-stream output array sized
// M*portPacketLength.
func RawCopyWithHeader(out []byte, portPacketLength int) Emit {
	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		copy(out[outSlot*portPacketLength:(outSlot+1)*portPacketLength], raw)
	}
}

// RawCopyNoHeader implements mode 1: verbatim per-packet payload copy,
// header stripped, into a single per-stream output array sized
// M*(portPacketLength-header.Size).
func RawCopyNoHeader(out []byte, portPacketLength int) Emit {
	payloadLen := portPacketLength - header.Size
	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		copy(out[outSlot*payloadLen:(outSlot+1)*payloadLen], raw[header.Size:])
	}
}

// SplitPols implements mode 2: four output arrays (Xr, Xi, Yr, Yi), each
// addressed by output-channel and time slot within the iteration. 4-bit
// input is widened to a full byte per spec §4.7.
func SplitPols(outputs [4][]byte, g Geometry) Emit {
	decode := DecoderFor(g.BitMode)
	width := OutWidthFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				idx := (outSlot*g.TotalProcBeamlets + g.Cumulative + i) * TimeSlices + ts
				WriteInt(outputs[0], idx, width, xr)
				WriteInt(outputs[1], idx, width, xi)
				WriteInt(outputs[2], idx, width, yr)
				WriteInt(outputs[3], idx, width, yi)
			}
		}
	}
}

// chanMajorIndex computes the [iteration, ts, beamlet] index shared by
// ChannelMajor and ReversedChannelMajor, reversed is applied by the caller
// choosing which beamlet coordinate to pass in.
func chanMajorIndex(g Geometry, outSlot, ts, beamlet int) int {
	return (outSlot*TimeSlices+ts)*g.TotalProcBeamlets + beamlet
}

// ChannelMajor implements modes 10/11: layout [iteration, ts, beamlet,
// pol]. split selects between one interleaved output (mode 10) and four
// separate per-polarization outputs (mode 11).
func ChannelMajor(outputs [4][]byte, g Geometry, split bool) Emit {
	decode := DecoderFor(g.BitMode)
	width := OutWidthFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				chanIdx := chanMajorIndex(g, outSlot, ts, g.Cumulative+i)
				if split {
					WriteInt(outputs[0], chanIdx, width, xr)
					WriteInt(outputs[1], chanIdx, width, xi)
					WriteInt(outputs[2], chanIdx, width, yr)
					WriteInt(outputs[3], chanIdx, width, yi)
				} else {
					base := chanIdx * channelsPerSample
					WriteInt(outputs[0], base, width, xr)
					WriteInt(outputs[0], base+1, width, xi)
					WriteInt(outputs[0], base+2, width, yr)
					WriteInt(outputs[0], base+3, width, yi)
				}
			}
		}
	}
}

// ReversedChannelMajor implements modes 20/21: as ChannelMajor, but the
// beamlet coordinate runs high-frequency-first. Per spec Design Notes §9,
// specified uniformly as T-1-(b+cum) rather than the source's inconsistent
// totalBeamlets-(b+cum)/totalBeamlets-1-(b+cum) mix.
func ReversedChannelMajor(outputs [4][]byte, g Geometry, split bool) Emit {
	decode := DecoderFor(g.BitMode)
	width := OutWidthFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				reversed := g.TotalProcBeamlets - 1 - (g.Cumulative + i)
				chanIdx := chanMajorIndex(g, outSlot, ts, reversed)
				if split {
					WriteInt(outputs[0], chanIdx, width, xr)
					WriteInt(outputs[1], chanIdx, width, xi)
					WriteInt(outputs[2], chanIdx, width, yr)
					WriteInt(outputs[3], chanIdx, width, yi)
				} else {
					base := chanIdx * channelsPerSample
					WriteInt(outputs[0], base, width, xr)
					WriteInt(outputs[0], base+1, width, xi)
					WriteInt(outputs[0], base+2, width, yr)
					WriteInt(outputs[0], base+3, width, yi)
				}
			}
		}
	}
}

// TimeMajorVariant selects among the mode 30/31/32/35 layout family.
type TimeMajorVariant int

const (
	TimeMajorSingle  TimeMajorVariant = iota // mode 30: one interleaved output
	TimeMajorSplit                           // mode 31: four separate I1..I4 outputs
	TimeMajorDual                            // mode 32: two complex-pair outputs (X, Y)
	TimeMajorFloat32                         // mode 35: like Single, forced float32
)

// timeMajorBase computes output[((b+cum) * M * 16) + outSlot*16 + ts] per
// spec §4.8.
func timeMajorBase(g Geometry, beamletIdx, outSlot, ts int) int {
	return beamletIdx*g.PacketsPerIteration*TimeSlices + outSlot*TimeSlices + ts
}

// TimeMajor implements modes 30/31/32/35. The intended split-pol layout is
// I1=X-real, I2=X-imag, I3=Y-real, I4=Y-imag (spec Design Notes §9); the
// source's write-output[1]-twice bug is deliberately not reproduced here.
func TimeMajor(outputs [4][]byte, g Geometry, variant TimeMajorVariant) Emit {
	decode := DecoderFor(g.BitMode)
	width := OutWidthFor(g.BitMode)
	span := g.span()
	useFloat := variant == TimeMajorFloat32

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				idx := timeMajorBase(g, g.Cumulative+i, outSlot, ts)

				switch variant {
				case TimeMajorSplit:
					WriteInt(outputs[0], idx, width, xr)
					WriteInt(outputs[1], idx, width, xi)
					WriteInt(outputs[2], idx, width, yr)
					WriteInt(outputs[3], idx, width, yi)
				case TimeMajorDual:
					// outputs[0] = X (real,imag interleaved), outputs[1] = Y
					WriteInt(outputs[0], idx*2, width, xr)
					WriteInt(outputs[0], idx*2+1, width, xi)
					WriteInt(outputs[1], idx*2, width, yr)
					WriteInt(outputs[1], idx*2+1, width, yi)
				default: // TimeMajorSingle, TimeMajorFloat32
					if useFloat {
						base := idx * channelsPerSample
						WriteFloat32(outputs[0], base, float32(xr))
						WriteFloat32(outputs[0], base+1, float32(xi))
						WriteFloat32(outputs[0], base+2, float32(yr))
						WriteFloat32(outputs[0], base+3, float32(yi))
					} else {
						base := idx * channelsPerSample
						WriteInt(outputs[0], base, width, xr)
						WriteInt(outputs[0], base+1, width, xi)
						WriteInt(outputs[0], base+2, width, yr)
						WriteInt(outputs[0], base+3, width, yi)
					}
				}
			}
		}
	}
}
