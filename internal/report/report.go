// Package report packages one analysis into an immutable Incident Report.
package report

import (
	"time"

	"github.com/banshee-data/watchpost/internal/engine"
	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/signals"
	"github.com/banshee-data/watchpost/internal/timeutil"
	"github.com/google/uuid"
)

// RawSignals is the audit copy of everything the decision was based on.
type RawSignals struct {
	signals.Bundle
	FastPath fastpath.Prediction `json:"fast_path"`
}

// Report is never modified after Assemble returns it.
type Report struct {
	ID                     string                   `json:"report_id"`
	SourceFilename         string                   `json:"source_filename"`
	CreatedAt              time.Time                `json:"created_at"`
	ProcessingTimeMS       float64                  `json:"processing_time_ms"`
	LatencyTargetMS        float64                  `json:"emergency_latency_target_ms"`
	MetLatencyTarget       bool                     `json:"met_latency_target"`
	OfflineMode            bool                     `json:"offline_mode"`
	VideoNeverLeavesDevice bool                     `json:"video_never_leaves_device"`
	ReasoningMode          engine.Mode              `json:"reasoning_mode"`
	Summary                string                   `json:"summary"`
	Incidents              []incident.Incident      `json:"incidents"`
	Timeline               []incident.TimelineEntry `json:"timeline"`
	RawSignals             RawSignals               `json:"raw_signals"`
}

// Severe returns the report's incidents that warrant a notification.
func (r *Report) Severe() []incident.Incident {
	return incident.Severe(r.Incidents)
}

// Input is what one analysis hands to the assembler.
type Input struct {
	SourceFilename string
	Bundle         *signals.Bundle
	Prediction     fastpath.Prediction
	Decision       engine.Decision
}

// Flags are deployment properties stamped on every report.
type Flags struct {
	OfflineMode            bool
	VideoNeverLeavesDevice bool
}

// Assembler builds reports. NewID defaults to a random UUID.
type Assembler struct {
	flags Flags
	clock timeutil.Clock
	NewID func() string
}

func NewAssembler(flags Flags, clock timeutil.Clock) *Assembler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Assembler{flags: flags, clock: clock, NewID: uuid.NewString}
}

// Assemble copies every slice it is given so later edits by the caller
// cannot reach the report. Processing time is the extraction p95, the
// effective per-frame latency.
func (a *Assembler) Assemble(in Input) *Report {
	var bundle signals.Bundle
	if in.Bundle != nil {
		bundle = *in.Bundle.WithTotalAnalysis(in.Bundle.Latency.TotalAnalysisMS)
	}
	prediction := in.Prediction
	prediction.Distribution = append([]fastpath.LabelProbability(nil), in.Prediction.Distribution...)

	return &Report{
		ID:                     a.NewID(),
		SourceFilename:         in.SourceFilename,
		CreatedAt:              a.clock.Now().UTC(),
		ProcessingTimeMS:       bundle.Latency.P95MS,
		LatencyTargetMS:        bundle.Latency.TargetMS,
		MetLatencyTarget:       bundle.Latency.MetTarget,
		OfflineMode:            a.flags.OfflineMode,
		VideoNeverLeavesDevice: a.flags.VideoNeverLeavesDevice,
		ReasoningMode:          in.Decision.Mode,
		Summary:                in.Decision.Summary,
		Incidents:              append([]incident.Incident(nil), in.Decision.Incidents...),
		Timeline:               append([]incident.TimelineEntry(nil), in.Decision.Timeline...),
		RawSignals: RawSignals{
			Bundle:   bundle,
			FastPath: prediction,
		},
	}
}
