package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/signals"
	"github.com/google/go-cmp/cmp"
)

func sampleBundle() *signals.Bundle {
	return &signals.Bundle{
		Video: signals.Video{FrameRate: 30, DurationSeconds: 4, MotionMean: 1, MotionStd: 0.5, BrightnessMean: 100},
		Pose:  signals.Pose{HorizontalPostureScore: 0.5, AreaChangeMean: 12},
		Audio: signals.Audio{DistressScore: 0.1},
	}
}

func shopliftingPrediction() fastpath.Prediction {
	return fastpath.Prediction{
		Available: true,
		Distribution: []fastpath.LabelProbability{
			{Label: "shoplifting", Type: incident.Shoplifting, Probability: 0.6},
			{Label: "none", Type: incident.None, Probability: 0.4},
		},
		LabelCount:     2,
		TopLabel:       "shoplifting",
		TopProbability: 0.6,
	}
}

func TestBuildSummary(t *testing.T) {
	want := "Video: fps=30.0, duration_sec=4.0, motion_mean=1.00, motion_std=0.50, brightness_mean=100.0.\n" +
		"Body pose (TensorFlow): horizontal_posture_score=0.50 (1=lying/collapsed), area_change_mean=12.\n" +
		"Audio: distress_score=0.10 (high=distress/coughing).\n" +
		"Fast detector probs: {\n\"shoplifting\": 0.6,\n\"none\": 0.4\n}."
	if got := BuildSummary(sampleBundle(), shopliftingPrediction()); got != want {
		t.Errorf("BuildSummary mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestBuildSummary_NoFastPath(t *testing.T) {
	got := BuildSummary(sampleBundle(), fastpath.Unavailable())
	if strings.Contains(got, "Fast detector") {
		t.Errorf("unavailable prediction rendered: %q", got)
	}
	if n := strings.Count(got, "\n"); n != 2 {
		t.Errorf("got %d newlines, want 2", n)
	}
}

func TestReprFloat(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{0.6, "0.6"},
		{0.30000000000000004, "0.30000000000000004"},
		{0.0001, "0.0001"},
		{0.00005, "5e-05"},
		{1.25e-07, "1.25e-07"},
		{1e16, "1e+16"},
		{123.5, "123.5"},
	}
	for _, tt := range tests {
		if got := reprFloat(tt.v); got != tt.want {
			t.Errorf("reprFloat(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestParseIncidents(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []incident.Incident
	}{
		{
			name:    "plain list",
			content: `[{"incident_type":"shoplifting","confidence":0.9,"timestamp_seconds":2.5,"evidence":"concealed item","recommended_action":"notify"}]`,
			want: []incident.Incident{
				{Type: incident.Shoplifting, Confidence: 0.9, TimestampSeconds: 2.5, Evidence: "concealed item", RecommendedAction: "notify"},
			},
		},
		{
			name:    "fenced json with single object",
			content: "```json\n{\"incident_type\": \"violent_activity\", \"confidence\": 0.7}\n```",
			want: []incident.Incident{
				{Type: incident.ViolentActivity, Confidence: 0.7, Evidence: DefaultRemoteEvidence, RecommendedAction: incident.ContinueMonitoring},
			},
		},
		{
			name:    "fence without tag",
			content: "  ```\n[{\"incident_type\": \"intrusion\"}]```  ",
			want: []incident.Incident{
				{Type: incident.Intrusion, Evidence: DefaultRemoteEvidence, RecommendedAction: incident.ContinueMonitoring},
			},
		},
		{
			name:    "unknown type and junk entries",
			content: `[{"incident_type":"arson","confidence":"0.4"}, 7, "text", null, {"incident_type": null, "confidence": 2, "timestamp_seconds": -3}]`,
			want: []incident.Incident{
				{Type: incident.None, Confidence: 0.4, Evidence: DefaultRemoteEvidence, RecommendedAction: incident.ContinueMonitoring},
				{Type: incident.None, Confidence: 1, Evidence: DefaultRemoteEvidence, RecommendedAction: incident.ContinueMonitoring},
			},
		},
		{
			name:    "bad numbers default to zero",
			content: `[{"incident_type":"shoplifting","confidence":"high","timestamp_seconds":{"s":1}}]`,
			want: []incident.Incident{
				{Type: incident.Shoplifting, Evidence: DefaultRemoteEvidence, RecommendedAction: incident.ContinueMonitoring},
			},
		},
		{
			name:    "non-string type",
			content: `[{"incident_type": 3, "evidence": 12}]`,
			want: []incident.Incident{
				{Type: incident.None, Evidence: "12", RecommendedAction: incident.ContinueMonitoring},
			},
		},
		{
			name:    "objects without incident_type",
			content: `[{}, {"confidence": 0.9, "evidence": "running"}, {"incident_type": "intrusion"}]`,
			want: []incident.Incident{
				{Type: incident.Intrusion, Evidence: DefaultRemoteEvidence, RecommendedAction: incident.ContinueMonitoring},
			},
		},
		{name: "bare object", content: `{}`, want: []incident.Incident{}},
		{name: "number", content: `42`, want: []incident.Incident{}},
		{name: "empty list", content: `[]`, want: []incident.Incident{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIncidents(tt.content, DefaultRemoteEvidence)
			if err != nil {
				t.Fatalf("ParseIncidents: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIncidents_Malformed(t *testing.T) {
	for _, content := range []string{
		"",
		"I think this is shoplifting.",
		"```json\n[{\"incident_type\": \"shoplifting\",]\n```",
		"[{\"incident_type\": \"shoplifting\"}] trailing words",
		"{",
	} {
		got, err := ParseIncidents(content, DefaultLocalEvidence)
		if !errors.Is(err, ErrMalformedReply) {
			t.Errorf("ParseIncidents(%q) err = %v, want ErrMalformedReply", content, err)
		}
		if len(got) != 0 {
			t.Errorf("ParseIncidents(%q) returned %v", content, got)
		}
	}
}

func TestParseEnrichment(t *testing.T) {
	e, err := ParseEnrichment("```json\n{\"evidence\": \" Person pocketed an item. \", \"recommended_action\": \"Alert floor staff.\", \"incident_type\": \"fainting\"}\n```")
	if err != nil {
		t.Fatalf("ParseEnrichment: %v", err)
	}
	if e.Evidence != "Person pocketed an item." || e.RecommendedAction != "Alert floor staff." {
		t.Errorf("enrichment = %+v", e)
	}

	if _, err := ParseEnrichment("[]"); !errors.Is(err, ErrMalformedReply) {
		t.Errorf("empty list err = %v", err)
	}
}

func TestPrompts(t *testing.T) {
	p := ClassifyPrompt("SUMMARY")
	if !strings.HasPrefix(p, PrimaryClassifierRules) || !strings.HasSuffix(p, "MULTIMODAL SUMMARY:\nSUMMARY\n\nJSON array:") {
		t.Errorf("ClassifyPrompt = %q", p)
	}
	e := EnrichPrompt("SUMMARY", incident.Incident{Type: incident.Shoplifting, Confidence: 0.95, Evidence: "rule"})
	if !strings.Contains(e, `"incident_type":"shoplifting"`) || !strings.Contains(e, "SUMMARY") {
		t.Errorf("EnrichPrompt = %q", e)
	}
}

func TestGemini_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var req geminiRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body: %v", err)
		}
		if req.GenerationConfig.Temperature != 0.1 || !strings.Contains(req.Contents[0].Parts[0].Text, "MULTIMODAL SUMMARY:\nS") {
			t.Errorf("request = %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + "```json\\n" + `[{\"incident_type\":\"shoplifting\",\"confidence\":0.9}]` + "\\n```" + `"}]}}]}`))
	}))
	defer server.Close()

	g := NewGemini(server.URL, "", "secret", time.Second)
	got, err := g.Classify(context.Background(), "S")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 1 || got[0].Type != incident.Shoplifting || got[0].Confidence != 0.9 {
		t.Errorf("incidents = %+v", got)
	}
}

func TestGemini_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	if _, err := NewGemini(server.URL, "", "bad", time.Second).Classify(context.Background(), "S"); err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("err = %v", err)
	}
	if NewGemini("", "", "", 0).Configured() {
		t.Error("client without key reports configured")
	}
	if _, err := NewGemini(server.URL, "", "", time.Second).Classify(context.Background(), "S"); err == nil {
		t.Error("expected error without key")
	}
}

func TestGemini_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-release }))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewGemini(server.URL, "", "k", 5*time.Second).Classify(ctx, "S"); err == nil {
		t.Error("expected timeout error")
	}
}

func ollamaServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != DefaultOllamaModel || req.Stream || req.Options.Temperature != 0.1 {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		out, _ := json.Marshal(map[string]string{"response": reply})
		w.Write(out)
	})
	return httptest.NewServer(mux)
}

func TestOllama_Enrich(t *testing.T) {
	server := ollamaServer(t, `{"evidence": "Item moved into jacket.", "recommended_action": "Ask staff to check aisle 4."}`, http.StatusOK)
	defer server.Close()

	o := NewOllama(server.URL+"/api/generate", "", time.Second)
	if !o.Reachable(context.Background()) {
		t.Fatal("server should be reachable")
	}
	e, err := o.Enrich(context.Background(), "S", incident.Incident{Type: incident.Shoplifting})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if e.Evidence != "Item moved into jacket." || e.RecommendedAction != "Ask staff to check aisle 4." {
		t.Errorf("enrichment = %+v", e)
	}
}

func TestOllama_EnrichFailures(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		status int
	}{
		{"prose", "Sure! This looks like shoplifting.", http.StatusOK},
		{"empty object", "{}", http.StatusOK},
		{"server error", "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := ollamaServer(t, tt.reply, tt.status)
			defer server.Close()
			if _, err := NewOllama(server.URL+"/api/generate", "", time.Second).Enrich(context.Background(), "S", incident.Incident{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOllama_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if NewOllama(url+"/api/generate", "", time.Second).Reachable(context.Background()) {
		t.Error("closed server reported reachable")
	}
	if NewOllama("not a url", "", 0).Reachable(context.Background()) {
		t.Error("invalid endpoint reported reachable")
	}
}
