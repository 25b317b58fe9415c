// Package fastpath adapts an external low-latency pose/event classifier to
// the decision engine. The adapter builds the fixed-size feature window,
// calls the model and normalises its output. A missing or failing model is a
// normal degraded mode and is reported as an unavailable prediction.
package fastpath

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/signals"
	"gonum.org/v1/gonum/mat"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 2 * time.Second

// Model scores a feature window. The result holds one value per label.
type Model interface {
	Predict(ctx context.Context, window *mat.Dense) ([]float64, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, window *mat.Dense) ([]float64, error)

func (f ModelFunc) Predict(ctx context.Context, window *mat.Dense) ([]float64, error) {
	return f(ctx, window)
}

// Adapter is safe for concurrent use when its Model is.
type Adapter struct {
	model   Model
	labels  []string
	timeout time.Duration
}

// NewAdapter returns an adapter over model. A nil model or empty label set
// yields an adapter that always reports unavailable.
func NewAdapter(model Model, labels []string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{model: model, labels: append([]string(nil), labels...), timeout: timeout}
}

// LoadLabels reads a JSON array of label strings.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	return labels, nil
}

// Available reports whether a model and labels are configured.
func (a *Adapter) Available() bool {
	return a != nil && a.model != nil && len(a.labels) > 0
}

// Labels returns the configured label order.
func (a *Adapter) Labels() []string {
	return append([]string(nil), a.labels...)
}

// Predict scores b. It never fails; anything short of a usable distribution
// is returned as Unavailable.
func (a *Adapter) Predict(ctx context.Context, b *signals.Bundle) Prediction {
	p := a.predict(ctx, b)
	monitoring.FastPathPredictions.WithLabelValues(fmt.Sprint(p.Available)).Inc()
	return p
}

func (a *Adapter) predict(ctx context.Context, b *signals.Bundle) Prediction {
	if !a.Available() {
		return Unavailable()
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.model.Predict(ctx, BuildWindow(b))
	if err != nil {
		monitoring.Logf("fastpath: model call failed: %v", err)
		return Unavailable()
	}
	if len(raw) != len(a.labels) {
		monitoring.Logf("fastpath: model returned %d scores for %d labels", len(raw), len(a.labels))
		return Unavailable()
	}
	probs, ok := normalize(raw)
	if !ok {
		monitoring.Logf("fastpath: model returned an unusable distribution %v", raw)
		return Unavailable()
	}
	return newPrediction(a.labels, probs)
}

// normalize scales non-negative finite scores to sum to one.
func normalize(raw []float64) ([]float64, bool) {
	var sum float64
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, false
		}
		sum += v
	}
	if sum <= 0 {
		return nil, false
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = v / sum
	}
	return out, true
}
