package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoSeries is returned when a report carries no samples to plot.
var ErrNoSeries = errors.New("report has no signal series")

var (
	motionColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	horizontalColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// WritePlot renders the motion and horizontal posture series as a PNG.
// Posture is scaled onto the motion axis so both fit one panel.
func WritePlot(w io.Writer, r *Report) error {
	horizontal, motion := r.RawSignals.Window()
	if len(motion) == 0 {
		return ErrNoSeries
	}

	maxMotion := 1.0
	for _, v := range motion {
		if v > maxMotion {
			maxMotion = v
		}
	}

	motionPts := make(plotter.XYs, len(motion))
	horizPts := make(plotter.XYs, len(horizontal))
	for i := range motion {
		motionPts[i] = plotter.XY{X: float64(i), Y: motion[i]}
		horizPts[i] = plotter.XY{X: float64(i), Y: horizontal[i] * maxMotion}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Report %s - %s", r.ID, r.SourceFilename)
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Mean abs luma diff"

	motionLine, err := plotter.NewLine(motionPts)
	if err != nil {
		return err
	}
	motionLine.Color = motionColor
	motionLine.Width = vg.Points(1)
	p.Add(motionLine)
	p.Legend.Add("motion", motionLine)

	horizLine, err := plotter.NewLine(horizPts)
	if err != nil {
		return err
	}
	horizLine.Color = horizontalColor
	horizLine.Width = vg.Points(1)
	horizLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(horizLine)
	p.Legend.Add(fmt.Sprintf("horizontal x%.0f", maxMotion), horizLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to encode plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
