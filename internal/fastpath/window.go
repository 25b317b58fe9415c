package fastpath

import (
	"github.com/banshee-data/watchpost/internal/signals"
	"gonum.org/v1/gonum/mat"
)

const (
	// WindowSize is the number of time steps fed to the model.
	WindowSize = 32
	// FeatureCount is the number of features per time step.
	FeatureCount = 6

	motionScale = 50.0
)

// BuildWindow lays the bundle's series out as a WindowSize x FeatureCount
// matrix. Row i holds
//
//	[h, m/50, h-prev_h, (m-prev_m)/50, distress, i/(WindowSize-1)]
//
// where both series are cut to the shorter one, rows past its end are zero
// filled, and prev is the previous sample (the current one on row 0).
func BuildWindow(b *signals.Bundle) *mat.Dense {
	horizontal, motion := b.Window()
	n := len(horizontal)
	distress := b.Audio.DistressScore
	w := mat.NewDense(WindowSize, FeatureCount, nil)

	for i := 0; i < WindowSize; i++ {
		var hs, ms float64
		if i < n {
			hs, ms = horizontal[i], motion[i]
		}
		prevH, prevM := hs, ms
		if i > 0 && i < n {
			prevH, prevM = horizontal[i-1], motion[i-1]
		}
		w.SetRow(i, []float64{
			hs,
			ms / motionScale,
			hs - prevH,
			(ms - prevM) / motionScale,
			distress,
			float64(i) / float64(max(1, WindowSize-1)),
		})
	}
	return w
}
