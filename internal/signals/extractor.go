package signals

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/watchpost/internal/frames"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/timeutil"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrExtraction marks every failure that prevents a bundle from being built.
	ErrExtraction = errors.New("cannot extract signals")

	// ErrNoFramesProcessed is returned (wrapped in ErrExtraction) when the
	// source yields no processable frame.
	ErrNoFramesProcessed = errors.New("no frames processed")
)

const (
	DefaultTargetMS  = 100.0
	DefaultMaxFrames = 600
	SeriesWindow     = 120
	distressScale    = 25.0
)

// Params configures one Extractor. Zero fields take their defaults.
type Params struct {
	TargetMS  float64
	MaxFrames int
}

func (p Params) withDefaults() Params {
	if p.TargetMS <= 0 {
		p.TargetMS = DefaultTargetMS
	}
	if p.MaxFrames <= 0 {
		p.MaxFrames = DefaultMaxFrames
	}
	return p
}

// Extractor runs the adaptive per-frame loop. It holds no state between
// calls and may be shared by concurrent analyses.
type Extractor struct {
	params Params
	clock  timeutil.Clock
}

// NewExtractor returns an Extractor timing frames with clock. A nil clock
// uses the wall clock.
func NewExtractor(params Params, clock timeutil.Clock) *Extractor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Extractor{params: params.withDefaults(), clock: clock}
}

// Params returns the effective parameters.
func (e *Extractor) Params() Params { return e.params }

// ExtractFile opens identifier with opener and extracts it.
func (e *Extractor) ExtractFile(opener frames.Opener, identifier string) (*Bundle, error) {
	stream, err := opener.Open(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	defer stream.Close()
	return e.Extract(stream)
}

// Extract consumes stream in order until it ends or MaxFrames frames have been
// processed. The caller keeps ownership of stream.
func (e *Extractor) Extract(stream frames.Stream) (*Bundle, error) {
	target := e.params.TargetMS
	state := InitialState()

	var (
		motion, brightness, horizontal, areaDeltas, latencies []float64
		readErr                                               error
	)

	for frameIdx := 0; len(latencies) < e.params.MaxFrames; frameIdx++ {
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if state.Skip(frameIdx) {
			continue
		}

		start := e.clock.Now()
		sample, next := state.Step(frame)
		elapsed := float64(e.clock.Since(start)) / float64(time.Millisecond)

		brightness = append(brightness, sample.Brightness)
		motion = append(motion, sample.Motion)
		horizontal = append(horizontal, sample.Horizontal)
		areaDeltas = append(areaDeltas, sample.AreaDelta)
		latencies = append(latencies, elapsed)

		monitoring.FrameLatency.Observe(elapsed)
		if elapsed > target {
			monitoring.LatencyViolations.Inc()
		}
		state = next.Adapt(elapsed, target)
	}

	if len(latencies) == 0 {
		if readErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtraction, readErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, ErrNoFramesProcessed)
	}
	if readErr != nil {
		monitoring.Logf("signals: stream ended early after %d frames: %v", len(latencies), readErr)
	}

	fps := stream.FrameRate()
	if fps <= 0 {
		fps = frames.DefaultFrameRate
	}
	total := stream.TotalFrames()

	motionMean, motionStd := stat.PopMeanStdDev(motion, nil)

	return &Bundle{
		Video: Video{
			FrameRate:       fps,
			TotalFrames:     total,
			DurationSeconds: float64(total) / fps,
			SampleCount:     len(latencies),
			BrightnessMean:  stat.Mean(brightness, nil),
			MotionMean:      motionMean,
			MotionStd:       motionStd,
			MotionSeries:    roundedWindow(motion),
		},
		Pose: Pose{
			SampleCount:            len(horizontal),
			HorizontalPostureScore: stat.Mean(horizontal, nil),
			AreaChangeMean:         stat.Mean(areaDeltas, nil),
			HorizontalSeries:       roundedWindow(horizontal),
		},
		Audio: Audio{
			DistressScore:  math.Min(1.0, motionStd/distressScale),
			PipelineStatus: AudioProxyStatus,
		},
		Latency: summarizeLatency(latencies, target, state),
	}, nil
}

// summarizeLatency derives the latency block. Percentiles take the sorted
// sample at index ceil(p*n)-1.
func summarizeLatency(samples []float64, target float64, final ExtractionState) Latency {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	violations := 0
	for _, v := range samples {
		if v > target {
			violations++
		}
	}
	maxMS := sorted[len(sorted)-1]
	return Latency{
		TargetMS:            target,
		FrameCountProcessed: len(samples),
		P50MS:               stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95MS:               stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MaxMS:               maxMS,
		Violations:          violations,
		MetTarget:           maxMS <= target,
		FinalDownscale:      final.Downscale,
		FinalSkipStride:     final.SkipStride,
	}
}

func roundedWindow(series []float64) []float64 {
	n := min(len(series), SeriesWindow)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round(series[i]*1e4) / 1e4
	}
	return out
}
