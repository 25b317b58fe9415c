package incident

import (
	"fmt"
	"sort"
	"strings"
)

// Incident is one detected event candidate. Values are never edited once
// they are part of a report; stages that change an incident return a
// replacement.
type Incident struct {
	Type              Type    `json:"incident_type"`
	Confidence        float64 `json:"confidence"`
	TimestampSeconds  float64 `json:"timestamp_seconds"`
	Evidence          string  `json:"evidence"`
	RecommendedAction string  `json:"recommended_action"`
}

// TimelineEntry mirrors one incident for chronological display.
type TimelineEntry struct {
	T          float64 `json:"t"`
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note"`
}

const (
	// SanitizedEvidence replaces the evidence of any disallowed incident.
	SanitizedEvidence = "Event category is outside this deployment's scope; no alert raised."

	// NoIncidentEvidence is the evidence of the sentinel incident.
	NoIncidentEvidence = "No severe event detected from current multimodal signals."

	// SentinelConfidence is the confidence of the sentinel incident.
	SentinelConfidence = 0.8

	// NoCriticalEventSummary is the summary of a report with no real incidents.
	NoCriticalEventSummary = "No critical event detected. Monitoring remains active."
)

// Sentinel returns the placeholder incident that keeps a report non-empty.
func Sentinel() Incident {
	return Incident{
		Type:              None,
		Confidence:        SentinelConfidence,
		TimestampSeconds:  0.0,
		Evidence:          NoIncidentEvidence,
		RecommendedAction: ContinueMonitoring,
	}
}

// Sanitize rewrites every disallowed incident to None with fixed evidence and
// the default action. The result has the same length and order as the input,
// the input slice is not modified, and Sanitize(Sanitize(x)) == Sanitize(x).
// The second return value counts rewritten entries.
func Sanitize(in []Incident) ([]Incident, int) {
	out := make([]Incident, len(in))
	rewritten := 0
	for i, inc := range in {
		if inc.Type.Disallowed() {
			inc.Type = None
			inc.Evidence = SanitizedEvidence
			inc.RecommendedAction = ContinueMonitoring
			rewritten++
		}
		out[i] = inc
	}
	return out, rewritten
}

// EnsureNonEmpty appends the sentinel when the list is empty.
func EnsureNonEmpty(in []Incident) []Incident {
	if len(in) > 0 {
		return in
	}
	return []Incident{Sentinel()}
}

// Summary renders the human-readable headline: the two most confident
// non-None incidents, ties kept in detection order.
func Summary(incidents []Incident) string {
	var meaningful []Incident
	for _, inc := range incidents {
		if inc.Type != None {
			meaningful = append(meaningful, inc)
		}
	}
	if len(meaningful) == 0 {
		return NoCriticalEventSummary
	}

	sort.SliceStable(meaningful, func(i, j int) bool {
		return meaningful[i].Confidence > meaningful[j].Confidence
	})
	if len(meaningful) > 2 {
		meaningful = meaningful[:2]
	}

	labels := make([]string, len(meaningful))
	for i, inc := range meaningful {
		labels[i] = fmt.Sprintf("%s (%.2f)", inc.Type, inc.Confidence)
	}
	return fmt.Sprintf("Detected potential incident(s): %s. Local alert workflow engaged.", strings.Join(labels, ", "))
}

// Timeline returns one entry per incident in list order.
func Timeline(incidents []Incident) []TimelineEntry {
	entries := make([]TimelineEntry, len(incidents))
	for i, inc := range incidents {
		entries[i] = TimelineEntry{
			T:          inc.TimestampSeconds,
			Type:       inc.Type,
			Confidence: inc.Confidence,
			Note:       inc.Evidence,
		}
	}
	return entries
}

// Severe returns the incidents that meet the notification predicate.
func Severe(incidents []Incident) []Incident {
	var out []Incident
	for _, inc := range incidents {
		if inc.Type.Severe() && inc.Confidence >= SevereConfidence {
			out = append(out, inc)
		}
	}
	return out
}
