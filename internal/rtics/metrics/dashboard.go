package metrics

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// BuildDashboardHTML renders an iteration history as a self-contained HTML
// page: a line chart of packets read per iteration and a bar chart of the
// most recent iteration's per-stream drop counts.
func BuildDashboardHTML(reports []IterationReport) (string, error) {
	x := make([]string, len(reports))
	packetsRead := make([]opts.LineData, len(reports))
	for i, r := range reports {
		x[i] = fmt.Sprintf("%d", i+1)
		packetsRead[i] = opts.LineData{Value: r.PacketsRead}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "960px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Packets read per iteration"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "packets"}),
	)
	line.SetXAxis(x).AddSeries("packets_read", packetsRead)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "960px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Drops by stream (most recent iteration)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		streamLabels := make([]string, len(last.Dropped))
		dropData := make([]opts.BarData, len(last.Dropped))
		for i, d := range last.Dropped {
			streamLabels[i] = fmt.Sprintf("stream %d", i)
			dropData[i] = opts.BarData{Value: d}
		}
		bar.SetXAxis(streamLabels).AddSeries("dropped", dropData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	}

	page := components.NewPage()
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", fmt.Errorf("metrics: render dashboard: %w", err)
	}
	return buf.String(), nil
}
