// Package signals turns a frame stream into a Signal Bundle: motion,
// brightness and coarse posture proxies measured under a per-frame latency
// budget that the extractor enforces on itself.
package signals

// Bundle is the per-analysis signal set. It is created once by Extract and
// treated as read-only afterwards.
type Bundle struct {
	Video   Video   `json:"video"`
	Pose    Pose    `json:"pose"`
	Audio   Audio   `json:"audio"`
	Latency Latency `json:"latency"`
}

type Video struct {
	FrameRate       float64   `json:"fps"`
	TotalFrames     int       `json:"total_frames"`
	DurationSeconds float64   `json:"duration_seconds"`
	SampleCount     int       `json:"sample_count"`
	BrightnessMean  float64   `json:"brightness_mean"`
	MotionMean      float64   `json:"motion_mean"`
	MotionStd       float64   `json:"motion_std"`
	MotionSeries    []float64 `json:"motion_series"`
}

type Pose struct {
	SampleCount            int       `json:"pose_sample_count"`
	HorizontalPostureScore float64   `json:"horizontal_posture_score"`
	AreaChangeMean         float64   `json:"area_change_mean"`
	HorizontalSeries       []float64 `json:"horizontal_series"`
}

// Audio carries the distress proxy. There is no audio decoding; the score is
// derived from motion variance.
type Audio struct {
	DistressScore  float64 `json:"distress_score"`
	PipelineStatus string  `json:"audio_pipeline_status"`
}

// Latency summarises the per-frame timings of one extraction run.
type Latency struct {
	TargetMS            float64 `json:"target_ms"`
	FrameCountProcessed int     `json:"frame_count_processed"`
	P50MS               float64 `json:"p50_ms"`
	P95MS               float64 `json:"p95_ms"`
	MaxMS               float64 `json:"max_ms"`
	Violations          int     `json:"violations"`
	MetTarget           bool    `json:"met_target"`
	FinalDownscale      float64 `json:"downscale_final"`
	FinalSkipStride     int     `json:"skip_stride_final"`
	TotalAnalysisMS     float64 `json:"total_analysis_ms,omitempty"`
}

// AudioProxyStatus labels the distress score's provenance.
const AudioProxyStatus = "placeholder_from_video_proxy"

// WithTotalAnalysis returns a copy of b whose latency block records the
// wall-clock time of the whole extraction call.
func (b *Bundle) WithTotalAnalysis(ms float64) *Bundle {
	out := *b
	out.Video.MotionSeries = append([]float64(nil), b.Video.MotionSeries...)
	out.Pose.HorizontalSeries = append([]float64(nil), b.Pose.HorizontalSeries...)
	out.Latency.TotalAnalysisMS = ms
	return &out
}

// Window returns the index-aligned motion and horizontal series, both cut to
// the shorter of the two.
func (b *Bundle) Window() (horizontal, motion []float64) {
	n := len(b.Pose.HorizontalSeries)
	if m := len(b.Video.MotionSeries); m < n {
		n = m
	}
	return b.Pose.HorizontalSeries[:n], b.Video.MotionSeries[:n]
}
