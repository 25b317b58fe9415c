package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/watchpost/internal/engine"
	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/signals"
	"github.com/banshee-data/watchpost/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var created = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func testBundle() *signals.Bundle {
	return &signals.Bundle{
		Video: signals.Video{FrameRate: 30, TotalFrames: 90, DurationSeconds: 3, SampleCount: 3,
			MotionMean: 4, MotionStd: 2, MotionSeries: []float64{0, 4, 8}},
		Pose:  signals.Pose{SampleCount: 3, HorizontalPostureScore: 0.3, HorizontalSeries: []float64{0.2, 0.3, 0.4}},
		Audio: signals.Audio{DistressScore: 0.08, PipelineStatus: signals.AudioProxyStatus},
		Latency: signals.Latency{TargetMS: 100, FrameCountProcessed: 3, P50MS: 12, P95MS: 40, MaxMS: 45,
			MetTarget: true, FinalDownscale: 0.5, FinalSkipStride: 1, TotalAnalysisMS: 130},
	}
}

func testDecision() engine.Decision {
	incs := []incident.Incident{
		{Type: incident.ViolentActivity, Confidence: 0.775, TimestampSeconds: 1.5, Evidence: "Abrupt motion.", RecommendedAction: incident.DefaultAction(incident.ViolentActivity)},
	}
	return engine.Decision{
		Incidents: incs,
		Summary:   incident.Summary(incs),
		Timeline:  incident.Timeline(incs),
		Mode:      engine.ModeHeuristic,
	}
}

func assemble(t *testing.T) *Report {
	t.Helper()
	a := NewAssembler(Flags{OfflineMode: true, VideoNeverLeavesDevice: true}, timeutil.NewMockClock(created))
	a.NewID = func() string { return "rep-1" }
	return a.Assemble(Input{
		SourceFilename: "aisle4.y4m",
		Bundle:         testBundle(),
		Prediction:     fastpath.Unavailable(),
		Decision:       testDecision(),
	})
}

func TestAssemble(t *testing.T) {
	r := assemble(t)

	if r.ID != "rep-1" || r.SourceFilename != "aisle4.y4m" || !r.CreatedAt.Equal(created) {
		t.Errorf("header = %q %q %v", r.ID, r.SourceFilename, r.CreatedAt)
	}
	if r.ProcessingTimeMS != 40 || r.LatencyTargetMS != 100 || !r.MetLatencyTarget {
		t.Errorf("latency = %v/%v/%v", r.ProcessingTimeMS, r.LatencyTargetMS, r.MetLatencyTarget)
	}
	if !r.OfflineMode || !r.VideoNeverLeavesDevice {
		t.Error("deployment flags not stamped")
	}
	if r.ReasoningMode != engine.ModeHeuristic {
		t.Errorf("mode = %s", r.ReasoningMode)
	}
	if diff := cmp.Diff(testDecision().Incidents, r.Incidents); diff != "" {
		t.Errorf("incidents mismatch (-want +got):\n%s", diff)
	}
	if r.RawSignals.Latency.TotalAnalysisMS != 130 {
		t.Errorf("total analysis = %v", r.RawSignals.Latency.TotalAnalysisMS)
	}
}

func TestAssemble_CopiesInputs(t *testing.T) {
	b := testBundle()
	d := testDecision()
	a := NewAssembler(Flags{}, nil)
	r := a.Assemble(Input{Bundle: b, Decision: d, Prediction: fastpath.Unavailable()})

	b.Video.MotionSeries[0] = 99
	d.Incidents[0].Evidence = "edited"
	d.Timeline[0].Note = "edited"

	if r.RawSignals.Video.MotionSeries[0] != 0 {
		t.Error("report shares motion series with caller")
	}
	if r.Incidents[0].Evidence == "edited" || r.Timeline[0].Note == "edited" {
		t.Error("report shares incidents with caller")
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		t.Errorf("default id %q is not a uuid: %v", r.ID, err)
	}
}

func TestReport_JSON(t *testing.T) {
	r := assemble(t)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"report_id", "source_filename", "created_at", "processing_time_ms",
		"emergency_latency_target_ms", "met_latency_target", "offline_mode", "video_never_leaves_device",
		"reasoning_mode", "summary", "incidents", "timeline", "raw_signals"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(generic["raw_signals"], &raw); err != nil {
		t.Fatalf("raw_signals: %v", err)
	}
	for _, key := range []string{"video", "pose", "audio", "latency", "fast_path"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("raw_signals missing %q", key)
		}
	}
	if string(raw["fast_path"]) != `{"available":false,"event_probs":{}}` {
		t.Errorf("fast_path = %s", raw["fast_path"])
	}

	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal report: %v", err)
	}
	if diff := cmp.Diff(r, &back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReport_Severe(t *testing.T) {
	r := assemble(t)
	if got := r.Severe(); len(got) != 1 || got[0].Type != incident.ViolentActivity {
		t.Errorf("Severe = %+v", got)
	}
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderChart(&buf, assemble(t), ChartOptions{AssetsHost: "/static/echarts/"}); err != nil {
		t.Fatalf("RenderChart: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"Incident Report rep-1", "Signal series", "violent_activity", "/static/echarts/"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart html missing %q", want)
		}
	}
}

func TestWritePlot(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePlot(&buf, assemble(t)); err != nil {
		t.Fatalf("WritePlot: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a png: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Errorf("empty image %v", img.Bounds())
	}
}

func TestWritePlot_NoSeries(t *testing.T) {
	r := NewAssembler(Flags{}, nil).Assemble(Input{Bundle: &signals.Bundle{}, Decision: testDecision()})
	if err := WritePlot(&bytes.Buffer{}, r); !errors.Is(err, ErrNoSeries) {
		t.Errorf("err = %v, want ErrNoSeries", err)
	}
}
