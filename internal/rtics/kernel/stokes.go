package kernel

import "github.com/banshee-data/rtics/internal/rtics/header"

// StokesComponent names one of the four derived polarization quantities
// (spec §4.8, GLOSSARY).
type StokesComponent int

const (
	StokesI StokesComponent = iota
	StokesQ
	StokesU
	StokesV
)

// stokes computes all four Stokes parameters from one sample quadruple
// (spec §4.6/§4.8 formulas), in float64 to avoid intermediate overflow for
// 16-bit input before narrowing to float32 on write.
func stokes(xr, xi, yr, yi int32) (i, q, u, v float64) {
	fxr, fxi, fyr, fyi := float64(xr), float64(xi), float64(yr), float64(yi)
	i = fxr*fxr + fxi*fxi + fyr*fyr + fyi*fyi
	q = fxr*fxr + fxi*fxi - fyr*fyr - fyi*fyi
	u = 2 * (fxr*fyr + fxi*fyi)
	v = 2 * (fxr*fyi - fxi*fyr)
	return
}

func stokesComponent(c StokesComponent, i, q, u, v float64) float64 {
	switch c {
	case StokesQ:
		return q
	case StokesU:
		return u
	case StokesV:
		return v
	default:
		return i
	}
}

// reversedBeamlet applies the radio-astronomy high-frequency-first
// convention Stokes layouts use (spec §4.8: "Beamlet axis reversed").
func reversedBeamlet(g Geometry, i int) int {
	return g.TotalProcBeamlets - 1 - (g.Cumulative + i)
}

// Stokes implements modes 100/110/120/130: a single float32 channel-major
// output carrying one Stokes component.
func Stokes(out []byte, g Geometry, component StokesComponent) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				si, sq, su, sv := stokes(xr, xi, yr, yi)
				idx := chanMajorIndex(g, outSlot, ts, reversedBeamlet(g, i))
				WriteFloat32(out, idx, float32(stokesComponent(component, si, sq, su, sv)))
			}
		}
	}
}

// Full4Stokes implements mode 150: four float32 arrays I, Q, U, V.
func Full4Stokes(outputs [4][]byte, g Geometry) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				si, sq, su, sv := stokes(xr, xi, yr, yi)
				idx := chanMajorIndex(g, outSlot, ts, reversedBeamlet(g, i))
				WriteFloat32(outputs[0], idx, float32(si))
				WriteFloat32(outputs[1], idx, float32(sq))
				WriteFloat32(outputs[2], idx, float32(su))
				WriteFloat32(outputs[3], idx, float32(sv))
			}
		}
	}
}

// Dual2Stokes implements mode 160: two float32 arrays carrying a
// configurable pair of Stokes components (I and V by default).
func Dual2Stokes(outputs [2][]byte, g Geometry, first, second StokesComponent) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				si, sq, su, sv := stokes(xr, xi, yr, yi)
				idx := chanMajorIndex(g, outSlot, ts, reversedBeamlet(g, i))
				WriteFloat32(outputs[0], idx, float32(stokesComponent(first, si, sq, su, sv)))
				WriteFloat32(outputs[1], idx, float32(stokesComponent(second, si, sq, su, sv)))
			}
		}
	}
}

// StokesDecimated implements modes x01..x04/x11..x14/etc: a single Stokes
// component summed (not averaged, per spec §4.8: "divided by 1 (sum)")
// over `factor` consecutive time samples and emitted at the reduced rate.
// The output array must be pre-sized for ceil(M*16/factor) samples per
// channel and must start zeroed, since every bucket is reached by
// accumulation (read-add-write) rather than a single write.
func StokesDecimated(out []byte, g Geometry, component StokesComponent, factor int) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			t := outSlot*TimeSlices + ts
			bucket := t / factor
			for i := 0; i < span; i++ {
				b := g.Base + i
				xr, xi, yr, yi := decode(payload, ts, b, g.PortRawBeamlets)
				si, sq, su, sv := stokes(xr, xi, yr, yi)
				v := stokesComponent(component, si, sq, su, sv)

				idx := bucket*g.TotalProcBeamlets + reversedBeamlet(g, i)
				WriteFloat32(out, idx, ReadFloat32(out, idx)+float32(v))
			}
		}
	}
}

// DecimatedLength returns the number of temporal samples one channel of a
// StokesDecimated output holds for an iteration of M packets.
func DecimatedLength(m, factor int) int {
	return (m*TimeSlices + factor - 1) / factor
}
