// Package engine fuses signal heuristics, fast-path probabilities and
// optional model reasoning into the final, sanitized incident list of one
// analysis.
package engine

import (
	"context"
	"time"

	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/reasoning"
	"github.com/banshee-data/watchpost/internal/signals"
)

// Mode names the reasoning path chosen for an analysis.
type Mode string

const (
	ModeRemotePrimary   Mode = "remote_primary"
	ModeLocalEnrichment Mode = "local_enrichment"
	ModeHeuristic       Mode = "heuristic"
)

// Classifier is a remote model that picks incidents from a summary.
type Classifier interface {
	Configured() bool
	Classify(ctx context.Context, summary string) ([]incident.Incident, error)
}

// Enricher is a local model that describes incidents already decided by the
// heuristics.
type Enricher interface {
	Reachable(ctx context.Context) bool
	Enrich(ctx context.Context, summary string, inc incident.Incident) (reasoning.Enrichment, error)
}

// Config holds engine options.
type Config struct {
	// Offline disables the remote classifier even when it is configured.
	Offline bool
	// ReasoningTimeout bounds each model call. Zero means reasoning.DefaultTimeout.
	ReasoningTimeout time.Duration
}

// Decision is the engine's output for one analysis.
type Decision struct {
	Incidents []incident.Incident
	Summary   string
	Timeline  []incident.TimelineEntry
	Mode      Mode
	// Fallback is set when the chosen model produced nothing usable and
	// heuristic output was kept instead.
	Fallback bool
}

// Engine is safe for concurrent use as long as its collaborators are.
type Engine struct {
	cfg    Config
	remote Classifier
	local  Enricher
}

// New returns an engine. Either collaborator may be nil.
func New(cfg Config, remote Classifier, local Enricher) *Engine {
	if cfg.ReasoningTimeout <= 0 {
		cfg.ReasoningTimeout = reasoning.DefaultTimeout
	}
	return &Engine{cfg: cfg, remote: remote, local: local}
}

// SelectMode reports which reasoning path Decide would take right now.
func (e *Engine) SelectMode(ctx context.Context) Mode {
	if e.remote != nil && e.remote.Configured() && !e.cfg.Offline {
		return ModeRemotePrimary
	}
	if e.local != nil && e.local.Reachable(ctx) {
		return ModeLocalEnrichment
	}
	return ModeHeuristic
}

// Decide never fails: every reasoning error degrades to the heuristic result.
func (e *Engine) Decide(ctx context.Context, b *signals.Bundle, p fastpath.Prediction) Decision {
	mode := e.SelectMode(ctx)
	d := Decision{Mode: mode}

	var candidates []incident.Incident
	switch mode {
	case ModeRemotePrimary:
		candidates = e.classifyRemote(ctx, b, p)
		if len(candidates) == 0 {
			d.Fallback = true
			monitoring.ReasoningFallbacks.WithLabelValues(string(mode)).Inc()
			candidates = Heuristic(b, p)
		}
	case ModeLocalEnrichment:
		candidates, d.Fallback = e.enrichLocal(ctx, b, p, Heuristic(b, p))
		if d.Fallback {
			monitoring.ReasoningFallbacks.WithLabelValues(string(mode)).Inc()
		}
	default:
		candidates = Heuristic(b, p)
	}

	final, rewritten := incident.Sanitize(candidates)
	if rewritten > 0 {
		monitoring.Logf("engine: sanitized %d incident(s) of disallowed type", rewritten)
		monitoring.Sanitized.Add(float64(rewritten))
	}
	final = incident.EnsureNonEmpty(final)
	for _, inc := range final {
		monitoring.Incidents.WithLabelValues(string(inc.Type)).Inc()
	}

	d.Incidents = final
	d.Summary = incident.Summary(final)
	d.Timeline = incident.Timeline(final)
	return d
}

func (e *Engine) classifyRemote(ctx context.Context, b *signals.Bundle, p fastpath.Prediction) []incident.Incident {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReasoningTimeout)
	defer cancel()

	incidents, err := e.remote.Classify(ctx, reasoning.BuildSummary(b, p))
	if err != nil {
		monitoring.Logf("engine: remote classification failed, using heuristics: %v", err)
		return nil
	}
	return incidents
}

// enrichLocal replaces evidence and action text on each non-none incident
// with what the local model returns. The incident type is never touched.
// The boolean is true when any call failed.
func (e *Engine) enrichLocal(ctx context.Context, b *signals.Bundle, p fastpath.Prediction, decided []incident.Incident) ([]incident.Incident, bool) {
	if len(decided) == 0 {
		return decided, false
	}
	summary := reasoning.BuildSummary(b, p)
	failed := false

	out := make([]incident.Incident, len(decided))
	for i, inc := range decided {
		out[i] = inc
		if inc.Type == incident.None {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ReasoningTimeout)
		enrichment, err := e.local.Enrich(callCtx, summary, inc)
		cancel()
		if err != nil {
			monitoring.Logf("engine: local enrichment failed for %s, keeping heuristic text: %v", inc.Type, err)
			failed = true
			continue
		}
		if enrichment.Evidence != "" {
			out[i].Evidence = enrichment.Evidence
		}
		if enrichment.RecommendedAction != "" {
			out[i].RecommendedAction = enrichment.RecommendedAction
		}
	}
	return out, failed
}
