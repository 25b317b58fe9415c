// Package reasoning talks to large-language-model services on behalf of the
// decision engine. It owns the multimodal summary text those services are
// prompted with, the prompts themselves, one permissive parser for their
// replies, and the remote (Gemini) and local (Ollama) HTTP clients.
package reasoning

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/signals"
)

// BuildSummary renders the bundle's scalar signals as the fixed multi-line
// text every reasoning prompt embeds. The fast-path line is present only for
// an available prediction. Existing fine-tuned models were trained on this
// exact layout.
func BuildSummary(b *signals.Bundle, p fastpath.Prediction) string {
	lines := []string{
		fmt.Sprintf("Video: fps=%.1f, duration_sec=%.1f, motion_mean=%.2f, motion_std=%.2f, brightness_mean=%.1f.",
			b.Video.FrameRate, b.Video.DurationSeconds, b.Video.MotionMean, b.Video.MotionStd, b.Video.BrightnessMean),
		fmt.Sprintf("Body pose (TensorFlow): horizontal_posture_score=%.2f (1=lying/collapsed), area_change_mean=%.0f.",
			b.Pose.HorizontalPostureScore, b.Pose.AreaChangeMean),
		fmt.Sprintf("Audio: distress_score=%.2f (high=distress/coughing).", b.Audio.DistressScore),
	}
	if p.Available && len(p.Distribution) > 0 {
		lines = append(lines, "Fast detector probs: "+probsBlock(p.Distribution)+".")
	}
	return strings.Join(lines, "\n")
}

// probsBlock lays the distribution out one "key": value pair per line with no
// indentation, in distribution order.
func probsBlock(dist []fastpath.LabelProbability) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, lp := range dist {
		key, _ := json.Marshal(lp.Label)
		sb.Write(key)
		sb.WriteString(": ")
		sb.WriteString(reprFloat(lp.Probability))
		if i < len(dist)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("}")
	return sb.String()
}

// reprFloat formats v as the shortest round-tripping decimal, keeping a
// trailing ".0" on integral values and switching to exponent form below 1e-4
// or from 1e16 up.
func reprFloat(v float64) string {
	abs := math.Abs(v)
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v != 0 && (abs < 1e-4 || abs >= 1e16):
		return strconv.FormatFloat(v, 'e', -1, 64)
	case v == math.Trunc(v):
		return strconv.FormatFloat(v, 'f', 1, 64)
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}
