package fastpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banshee-data/watchpost/internal/incident"
)

// LabelProbability is one entry of a fast-path distribution. Label is the
// string from the labels file; Type is its coerced category.
type LabelProbability struct {
	Label       string
	Type        incident.Type
	Probability float64
}

// Prediction is the fast-path classifier's output for one bundle. The
// distribution keeps labels-file order.
type Prediction struct {
	Available      bool
	Distribution   []LabelProbability
	LabelCount     int
	TopLabel       string
	TopProbability float64
}

// Unavailable is the degraded-mode prediction.
func Unavailable() Prediction {
	return Prediction{}
}

// Probability returns the mass of the labels that name t exactly. Labels
// coerced to none from an unknown string do not count toward P(none).
func (p Prediction) Probability(t incident.Type) float64 {
	var sum float64
	for _, lp := range p.Distribution {
		if incident.Type(strings.TrimSpace(lp.Label)) == t {
			sum += lp.Probability
		}
	}
	return sum
}

// TopType is the coerced category of TopLabel.
func (p Prediction) TopType() incident.Type {
	return incident.ParseType(p.TopLabel)
}

func newPrediction(labels []string, probs []float64) Prediction {
	p := Prediction{
		Available:    true,
		Distribution: make([]LabelProbability, len(labels)),
		LabelCount:   len(labels),
	}
	for i, label := range labels {
		p.Distribution[i] = LabelProbability{Label: label, Type: incident.ParseType(label), Probability: probs[i]}
		if i == 0 || probs[i] > p.TopProbability {
			p.TopLabel, p.TopProbability = label, probs[i]
		}
	}
	return p
}

type predictionJSON struct {
	Available     bool            `json:"available"`
	EventProbs    json.RawMessage `json:"event_probs"`
	TopEvent      string          `json:"top_event,omitempty"`
	TopConfidence float64         `json:"top_confidence,omitempty"`
	LabelCount    int             `json:"label_count,omitempty"`
}

// MarshalJSON renders event_probs as an object in distribution order.
func (p Prediction) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lp := range p.Distribution {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lp.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(lp.Probability)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	out := predictionJSON{Available: p.Available, EventProbs: buf.Bytes(), LabelCount: p.LabelCount}
	if p.Available {
		out.TopEvent = p.TopLabel
		out.TopConfidence = p.TopProbability
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a stored prediction, keeping event_probs key order.
func (p *Prediction) UnmarshalJSON(data []byte) error {
	var in predictionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Prediction{
		Available:      in.Available,
		TopLabel:       in.TopEvent,
		TopProbability: in.TopConfidence,
		LabelCount:     in.LabelCount,
	}
	if len(in.EventProbs) == 0 || string(in.EventProbs) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(in.EventProbs))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("event_probs: expected object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("event_probs: %w", err)
		}
		label, _ := tok.(string)
		var prob float64
		if err := dec.Decode(&prob); err != nil {
			return fmt.Errorf("event_probs[%q]: %w", label, err)
		}
		p.Distribution = append(p.Distribution, LabelProbability{Label: label, Type: incident.ParseType(label), Probability: prob})
	}
	if p.LabelCount == 0 {
		p.LabelCount = len(p.Distribution)
	}
	return nil
}
