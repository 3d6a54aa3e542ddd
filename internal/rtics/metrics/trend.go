package metrics

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveDropTrendPNG plots each stream's per-iteration drop count across an
// iteration history and saves it as a PNG, one line per stream.
func SaveDropTrendPNG(reports []IterationReport, path string) error {
	p := plot.New()
	p.Title.Text = "Drop trend"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "dropped packets"

	streamCount := 0
	for _, r := range reports {
		if len(r.Dropped) > streamCount {
			streamCount = len(r.Dropped)
		}
	}

	for stream := 0; stream < streamCount; stream++ {
		pts := make(plotter.XYs, 0, len(reports))
		for i, r := range reports {
			if stream >= len(r.Dropped) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(i + 1), Y: float64(r.Dropped[stream])})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("metrics: build line for stream %d: %w", stream, err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("stream %d", stream), line)
	}
	p.Legend.Top = true

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("metrics: save drop trend: %w", err)
	}
	return nil
}
