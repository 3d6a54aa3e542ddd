package kernel

import (
	"github.com/banshee-data/rtics/internal/rtics/calibration"
	"github.com/banshee-data/rtics/internal/rtics/header"
)

// JonesFor resolves the calibration matrix for one combined-channel
// beamlet index, ahead of the per-sample decode.
type JonesFor func(beamlet int) []float32

// CalibratedStokes implements the calibrated variant of modes
// 100/110/120/130 (spec §4.6: calibration is applied to each sample before
// the Stokes parameters are derived from it).
func CalibratedStokes(out []byte, g Geometry, component StokesComponent, jonesFor JonesFor) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				rxr, rxi, ryr, ryi := decode(payload, ts, b, g.PortRawBeamlets)
				cxr, cxi, cyr, cyi := calibration.Apply(jonesFor(g.Cumulative+i), float32(rxr), float32(rxi), float32(ryr), float32(ryi))
				si, sq, su, sv := stokesFromCalibrated(cxr, cxi, cyr, cyi)
				idx := chanMajorIndex(g, outSlot, ts, reversedBeamlet(g, i))
				WriteFloat32(out, idx, float32(stokesComponent(component, si, sq, su, sv)))
			}
		}
	}
}

// CalibratedFull4Stokes implements the calibrated variant of mode 150.
func CalibratedFull4Stokes(outputs [4][]byte, g Geometry, jonesFor JonesFor) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				rxr, rxi, ryr, ryi := decode(payload, ts, b, g.PortRawBeamlets)
				cxr, cxi, cyr, cyi := calibration.Apply(jonesFor(g.Cumulative+i), float32(rxr), float32(rxi), float32(ryr), float32(ryi))
				si, sq, su, sv := stokesFromCalibrated(cxr, cxi, cyr, cyi)
				idx := chanMajorIndex(g, outSlot, ts, reversedBeamlet(g, i))
				WriteFloat32(outputs[0], idx, float32(si))
				WriteFloat32(outputs[1], idx, float32(sq))
				WriteFloat32(outputs[2], idx, float32(su))
				WriteFloat32(outputs[3], idx, float32(sv))
			}
		}
	}
}

// CalibratedDual2Stokes implements the calibrated variant of mode 160.
func CalibratedDual2Stokes(outputs [2][]byte, g Geometry, first, second StokesComponent, jonesFor JonesFor) Emit {
	decode := DecoderFor(g.BitMode)
	span := g.span()

	return func(outSlot int, raw []byte, h header.Header, synthetic bool) {
		payload := raw[header.Size:]
		for ts := 0; ts < TimeSlices; ts++ {
			for i := 0; i < span; i++ {
				b := g.Base + i
				rxr, rxi, ryr, ryi := decode(payload, ts, b, g.PortRawBeamlets)
				cxr, cxi, cyr, cyi := calibration.Apply(jonesFor(g.Cumulative+i), float32(rxr), float32(rxi), float32(ryr), float32(ryi))
				si, sq, su, sv := stokesFromCalibrated(cxr, cxi, cyr, cyi)
				idx := chanMajorIndex(g, outSlot, ts, reversedBeamlet(g, i))
				WriteFloat32(outputs[0], idx, float32(stokesComponent(first, si, sq, su, sv)))
				WriteFloat32(outputs[1], idx, float32(stokesComponent(second, si, sq, su, sv)))
			}
		}
	}
}

// stokesFromCalibrated is the stokes() formula applied directly to
// already-calibrated float32 complex samples.
func stokesFromCalibrated(xr, xi, yr, yi float32) (i, q, u, v float64) {
	fxr, fxi, fyr, fyi := float64(xr), float64(xi), float64(yr), float64(yi)
	i = fxr*fxr + fxi*fxi + fyr*fyr + fyi*fyi
	q = fxr*fxr + fxi*fxi - fyr*fyr - fyi*fyi
	u = 2 * (fxr*fyr + fxi*fyi)
	v = 2 * (fxr*fyi - fxi*fyr)
	return
}
