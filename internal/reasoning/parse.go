package reasoning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/watchpost/internal/incident"
)

const (
	// DefaultRemoteEvidence fills a missing evidence field from the remote model.
	DefaultRemoteEvidence = "Model reasoning"
	// DefaultLocalEvidence fills a missing evidence field from the local model.
	DefaultLocalEvidence = "Local model reasoning"
)

// ErrMalformedReply is returned when a reply is not valid JSON after fence
// stripping.
var ErrMalformedReply = errors.New("malformed model reply")

// stripFences removes surrounding whitespace, then any run of backticks at
// either end and a leading "json" language tag.
func stripFences(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.Trim(text, "`")
		if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
			text = text[4:]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// decodeItems returns the reply's objects. A single object counts as a
// one-element list; non-object list entries are dropped; any other JSON value
// yields no items.
func decodeItems(content string) ([]map[string]json.RawMessage, error) {
	text := stripFences(content)
	var payload json.RawMessage
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	var raws []json.RawMessage
	switch trimmed := bytes.TrimSpace(payload); {
	case len(trimmed) > 0 && trimmed[0] == '{':
		raws = []json.RawMessage{trimmed}
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
		}
	default:
		return nil, nil
	}

	items := make([]map[string]json.RawMessage, 0, len(raws))
	for _, raw := range raws {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			continue
		}
		items = append(items, obj)
	}
	return items, nil
}

// ParseIncidents normalises a model reply into incidents.
//
// Markdown code fences are tolerated, an object is accepted in place of a
// list, and entries that are not objects or carry no incident_type key are
// skipped, so a bare {} yields no incidents. incident_type goes
// through incident.ParseType, so unknown labels become none. Missing or
// unusable numbers default to 0 and are clamped into range (confidence to
// [0,1], timestamp to >= 0). Missing text fields take defaultEvidence and
// "Continue monitoring.". Invalid JSON returns ErrMalformedReply.
func ParseIncidents(content, defaultEvidence string) ([]incident.Incident, error) {
	items, err := decodeItems(content)
	if err != nil {
		return nil, err
	}
	out := make([]incident.Incident, 0, len(items))
	for _, item := range items {
		if _, ok := item["incident_type"]; !ok {
			continue
		}
		out = append(out, incident.Incident{
			Type:              incident.ParseType(stringField(item, "incident_type", string(incident.None))),
			Confidence:        clamp(numberField(item, "confidence"), 0, 1),
			TimestampSeconds:  math.Max(0, numberField(item, "timestamp_seconds")),
			Evidence:          stringField(item, "evidence", defaultEvidence),
			RecommendedAction: stringField(item, "recommended_action", incident.ContinueMonitoring),
		})
	}
	return out, nil
}

// Enrichment is the text a local model may contribute to a decided incident.
type Enrichment struct {
	Evidence          string
	RecommendedAction string
}

// ParseEnrichment reads evidence and recommended_action from the first
// object of a reply. Absent fields stay empty.
func ParseEnrichment(content string) (Enrichment, error) {
	items, err := decodeItems(content)
	if err != nil {
		return Enrichment{}, err
	}
	if len(items) == 0 {
		return Enrichment{}, fmt.Errorf("%w: no object in reply", ErrMalformedReply)
	}
	return Enrichment{
		Evidence:          strings.TrimSpace(stringField(items[0], "evidence", "")),
		RecommendedAction: strings.TrimSpace(stringField(items[0], "recommended_action", "")),
	}, nil
}

// stringField returns a string value as is, other JSON values as their text,
// and def when the key is absent or null.
func stringField(item map[string]json.RawMessage, key, def string) string {
	raw, ok := item[key]
	if !ok || string(raw) == "null" {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// numberField accepts JSON numbers, numeric strings and booleans. Anything
// else is 0.
func numberField(item map[string]json.RawMessage, key string) float64 {
	raw, ok := item[key]
	if !ok {
		return 0
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if x {
			f = 1
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
