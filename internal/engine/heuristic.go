package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/signals"
)

const (
	// HeuristicTimestamp is the nominal offset given to every heuristic
	// incident. The rules work on whole-clip aggregates and cannot localise
	// the event.
	HeuristicTimestamp = 1.5

	// ConfidenceGate is the minimum confidence a heuristic candidate needs.
	ConfidenceGate = 0.4

	fastShopliftingCap  = 0.95
	suspiciousCap       = 0.85
	suspiciousBoost     = 0.25
	rawShopliftingCap   = 0.80
	rawShopliftingBase  = 0.50
	violentCap          = 0.90
	violentBase         = 0.4
	calmDistress        = 0.3
	uprightPosture      = 0.8
	rawUprightPosture   = 0.85
	movingMotion        = 0.5
	violentMotionMean   = 10
	violentMotionStdMin = 8
)

// Heuristic applies the deterministic rule set to one bundle. It returns at
// most one incident, and none when no rule fires or the candidate falls
// below ConfidenceGate.
func Heuristic(b *signals.Bundle, p fastpath.Prediction) []incident.Incident {
	h := b.Pose.HorizontalPostureScore
	mm := b.Video.MotionMean
	ms := b.Video.MotionStd
	d := b.Audio.DistressScore

	var (
		candidate  = incident.None
		confidence float64
		rationale  []string
	)

	if p.Available {
		uniform := 1 / math.Max(1, float64(p.LabelCount))
		pShop := p.Probability(incident.Shoplifting)
		pSusp := p.Probability(incident.SuspiciousActivity)

		switch {
		case pShop > uniform:
			candidate, confidence = incident.Shoplifting, pShop
			rationale = append(rationale, fmt.Sprintf("Fast-path detector ranked shoplifting above uniform (p=%.2f).", pShop))
			if d < calmDistress {
				confidence += 0.30
				rationale = append(rationale, "Audio proxy calm.")
			}
			if h < uprightPosture {
				confidence += 0.10
				rationale = append(rationale, "Posture upright.")
			}
			if mm > movingMotion {
				confidence += 0.10
				rationale = append(rationale, "Person moving through scene.")
			}
			confidence = math.Min(fastShopliftingCap, confidence)
		case pSusp > uniform && pSusp > p.Probability(incident.None):
			candidate = incident.SuspiciousActivity
			confidence = math.Min(suspiciousCap, pSusp+suspiciousBoost)
			rationale = append(rationale, fmt.Sprintf("Fast-path detector ranked suspicious activity above uniform and none (p=%.2f).", pSusp))
		}
	}

	if candidate == incident.None {
		switch {
		case mm > movingMotion && d < calmDistress && h < rawUprightPosture:
			candidate = incident.Shoplifting
			confidence = math.Min(rawShopliftingCap, rawShopliftingBase+mm/15)
			rationale = append(rationale, "Sustained movement with upright posture and calm audio proxy.")
		case mm > violentMotionMean && ms > violentMotionStdMin:
			candidate = incident.ViolentActivity
			confidence = math.Min(violentCap, violentBase+ms/40)
			rationale = append(rationale, "Abrupt high-variance motion pattern observed.")
		}
	}

	if candidate == incident.None || confidence < ConfidenceGate {
		return nil
	}
	return []incident.Incident{{
		Type:              candidate,
		Confidence:        confidence,
		TimestampSeconds:  HeuristicTimestamp,
		Evidence:          strings.Join(rationale, " "),
		RecommendedAction: incident.DefaultAction(candidate),
	}}
}
