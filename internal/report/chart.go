package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartOptions controls the HTML chart page. An empty AssetsHost uses the
// go-echarts CDN; offline deployments point it at a local copy.
type ChartOptions struct {
	AssetsHost string
}

// RenderChart writes an HTML page with the report's per-sample signal
// series and its incident confidences.
func RenderChart(w io.Writer, r *Report, o ChartOptions) error {
	horizontal, motion := r.RawSignals.Window()

	xs := make([]int, len(motion))
	motionData := make([]opts.LineData, len(motion))
	horizontalData := make([]opts.LineData, len(horizontal))
	for i := range motion {
		xs[i] = i
		motionData[i] = opts.LineData{Value: motion[i]}
		horizontalData[i] = opts.LineData{Value: horizontal[i]}
	}

	initOpts := opts.Initialization{PageTitle: "Incident Report " + r.ID, Width: "100%", Height: "480px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Signal series", Subtitle: fmt.Sprintf("%s, %s", r.SourceFilename, r.Summary)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(xs).
		AddSeries("motion", motionData).
		AddSeries("horizontal posture", horizontalData)

	labels := make([]string, len(r.Incidents))
	conf := make([]opts.BarData, len(r.Incidents))
	for i, inc := range r.Incidents {
		labels[i] = fmt.Sprintf("%s @%.1fs", inc.Type, inc.TimestampSeconds)
		conf[i] = opts.BarData{Value: inc.Confidence}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Incidents", Subtitle: string(r.ReasoningMode)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "confidence"}),
	)
	bar.SetXAxis(labels).
		AddSeries("confidence", conf,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(line, bar)
	return page.Render(w)
}
