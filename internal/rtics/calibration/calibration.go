// Package calibration implements the per-iteration polarimetric
// calibration supplier (spec §4.6, component C6): a table of 2x2 complex
// Jones matrices keyed by output channel, refreshed on a step schedule
// from an external, file-backed source, and applied to raw sample
// quadruples on the per-packet hot path.
package calibration

import (
	"fmt"

	"github.com/banshee-data/rtics/internal/rtics/rerr"
)

// jonesWidth is the number of float32 values describing one 2x2 complex
// Jones matrix: Xr,Xi,Yr,Yi row contributions packed as j[0..7] per spec
// §4.6's apply formulas.
const jonesWidth = 8

// Table is a 2D calibration coefficient grid: T steps by totalProcBeamlets
// channels, each channel holding one 8-float Jones matrix.
type Table struct {
	Steps    int
	Beamlets int
	data     []float32 // row-major [step][beamlet][8]
}

// NewTable allocates a zeroed table of the given dimensions.
func NewTable(steps, beamlets int) *Table {
	return &Table{
		Steps:    steps,
		Beamlets: beamlets,
		data:     make([]float32, steps*beamlets*jonesWidth),
	}
}

// Jones returns the 8-float Jones matrix for (step, beamlet) as a slice
// into the table's backing array; callers must not retain it across a
// regeneration.
func (t *Table) Jones(step, beamlet int) []float32 {
	if step < 0 || step >= t.Steps || beamlet < 0 || beamlet >= t.Beamlets {
		panic(fmt.Sprintf("calibration: index (step=%d, beamlet=%d) out of range (%d, %d)", step, beamlet, t.Steps, t.Beamlets))
	}
	off := (step*t.Beamlets + beamlet) * jonesWidth
	return t.data[off : off+jonesWidth]
}

// Source supplies freshly generated calibration tables on demand. A
// FileSource reads a static file produced ahead of time; a GeneratorSource
// shells out to an external helper per spec §4.6 ("the supplier only
// consumes this buffer, it does not generate the coefficients").
type Source interface {
	Generate() (*Table, error)
}

// Supplier owns the active table, its step cursor, and the step schedule
// at which a fresh table is requested from Source.
type Supplier struct {
	src      Source
	stepSize int // iterations per calibration step

	table    *Table
	step     int
	iterSeen int

	driftThreshold float64
	onDrift        func(meanDet, stdDet float64)
}

// NewSupplier builds a Supplier whose step cursor advances once every
// stepSize iterations and that requests a new table from src when the
// cursor reaches the end of the current table (step >= T).
func NewSupplier(src Source, stepSize int) *Supplier {
	if stepSize <= 0 {
		stepSize = 1
	}
	return &Supplier{src: src, stepSize: stepSize, step: -1}
}

// SetDriftAlarm installs a callback invoked after each regeneration with
// the mean and standard deviation of |det(J)| across all channels (spec
// §4.13), fired only when the mean falls below threshold.
func (s *Supplier) SetDriftAlarm(threshold float64, onDrift func(meanDet, stdDet float64)) {
	s.driftThreshold = threshold
	s.onDrift = onDrift
}

// Table returns the currently active table, or nil if none has been
// generated yet.
func (s *Supplier) Table() *Table { return s.table }

// Step returns the current step index into the active table.
func (s *Supplier) Step() int { return s.step }

// Advance is called once per iteration by the driver (spec §4.9 step 3:
// "Refresh calibration if exhausted"). It advances the cursor by one step
// every stepSize iterations, then regenerates the table when there is no
// table yet or the cursor has reached the table's depth, so after a
// successful Advance Step() always indexes a row of Table().
func (s *Supplier) Advance() error {
	if s.table != nil {
		s.iterSeen++
		if s.iterSeen >= s.stepSize {
			s.iterSeen = 0
			s.step++
		}
	}
	if s.table == nil || s.step >= s.table.Steps {
		if err := s.regenerate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supplier) regenerate() error {
	table, err := s.src.Generate()
	if err != nil {
		return rerr.New(rerr.CalibrationFailed, "calibration: regenerate: %v", err)
	}
	s.table = table
	s.step = 0
	s.iterSeen = 0

	mean, std := tableDriftStats(table)
	if s.onDrift != nil && mean < s.driftThreshold {
		s.onDrift(mean, std)
	}
	return nil
}

// Apply returns one sample quadruple transformed by the Jones matrix j
// (the row Table.Jones gives for a step and beamlet), per spec §4.6's
// apply formulas.
func Apply(j []float32, xr, xi, yr, yi float32) (xrOut, xiOut, yrOut, yiOut float32) {
	xrOut = j[0]*xr - j[1]*xi + j[2]*yr - j[3]*yi
	xiOut = j[0]*xi + j[1]*xr + j[2]*yi + j[3]*yr
	yrOut = j[4]*xr - j[5]*xi + j[6]*yr - j[7]*yi
	yiOut = j[4]*xi + j[5]*xr + j[6]*yi + j[7]*yr
	return
}
