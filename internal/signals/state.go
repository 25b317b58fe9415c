package signals

import (
	"image"
	"math"
)

const (
	InitialDownscale = 0.5
	MinDownscale     = 0.25
	DownscaleStep    = 0.1
	InitialStride    = 1
	MaxStride        = 4
)

// ExtractionState is the control-loop state threaded from one processed
// frame to the next. Steps return a new value; a state is never edited.
type ExtractionState struct {
	Downscale  float64
	SkipStride int
	PrevLuma   *image.Gray
	PrevArea   float64
}

// InitialState is the full-quality starting point of every run.
func InitialState() ExtractionState {
	return ExtractionState{Downscale: InitialDownscale, SkipStride: InitialStride}
}

// Skip reports whether raw frame index i is dropped under the current stride.
func (s ExtractionState) Skip(i int) bool {
	return i%s.SkipStride != 0
}

// Adapt applies the latency feedback rule. A frame over budget lowers the
// resolution by one step and widens the stride by one, within their bounds.
// Neither parameter ever moves back toward its initial value.
func (s ExtractionState) Adapt(elapsedMS, targetMS float64) ExtractionState {
	if elapsedMS <= targetMS {
		return s
	}
	next := s
	// Rounded so repeated steps land exactly on 0.4, 0.3, 0.25.
	next.Downscale = math.Max(MinDownscale, math.Round((s.Downscale-DownscaleStep)*100)/100)
	if next.SkipStride < MaxStride {
		next.SkipStride++
	}
	return next
}

// Sample is what one processed frame contributes to the bundle.
type Sample struct {
	Brightness float64
	Motion     float64
	Horizontal float64
	AreaDelta  float64
}

// Step measures one frame under s and returns the sample together with the
// state carrying this frame's luminance and silhouette area forward.
func (s ExtractionState) Step(frame image.Image) (Sample, ExtractionState) {
	luma := downscaleLuma(frame, s.Downscale)

	var sample Sample
	sample.Brightness = meanLuma(luma)
	if s.PrevLuma != nil {
		sample.Motion = meanAbsDiff(luma, s.PrevLuma)
	}

	var aspect, area float64
	if box, ok := silhouette(luma); ok {
		w, h := float64(box.Dx()), float64(box.Dy())
		aspect = w / math.Max(h, 1)
		area = w * h
	}
	sample.Horizontal = sigmoid((aspect - 1.4) * 3.0)
	sample.AreaDelta = math.Abs(area - s.PrevArea)

	next := s
	next.PrevLuma = luma
	next.PrevArea = area
	return sample, next
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
