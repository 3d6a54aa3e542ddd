package calibration

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tableDriftStats computes the mean and standard deviation of |det(J)|
// across every (step, beamlet) entry in table, used to flag a degenerate
// calibration table from the external generator (spec §4.13).
func tableDriftStats(table *Table) (mean, std float64) {
	n := table.Steps * table.Beamlets
	if n == 0 {
		return 0, 0
	}
	dets := make([]float64, 0, n)
	for s := 0; s < table.Steps; s++ {
		for b := 0; b < table.Beamlets; b++ {
			dets = append(dets, jonesDeterminantMagnitude(table.Jones(s, b)))
		}
	}
	return stat.MeanStdDev(dets, nil)
}

// jonesDeterminantMagnitude computes |det(J)| for a 2x2 complex Jones
// matrix packed as j[0..7] = (Xr-row-X-contribution real/imag, ...),
// treating the matrix as
//
//	[ (j0+ij1)  (j2+ij3) ]
//	[ (j4+ij5)  (j6+ij7) ]
//
// so det = (j0+ij1)(j6+ij7) - (j2+ij3)(j4+ij5).
func jonesDeterminantMagnitude(j []float32) float64 {
	a, b := float64(j[0]), float64(j[1])
	c, d := float64(j[2]), float64(j[3])
	e, f := float64(j[4]), float64(j[5])
	g, h := float64(j[6]), float64(j[7])

	// (a+ib)(g+ih) = (ag-bh) + i(ah+bg)
	realPart := (a*g - b*h) - (c*e - d*f)
	imagPart := (a*h + b*g) - (c*f + d*e)
	return math.Hypot(realPart, imagPart)
}
