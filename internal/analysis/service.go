// Package analysis runs one video through the whole pipeline: staging,
// signal extraction, the latency gate, the fast path, the decision engine,
// report assembly, persistence and notification.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/watchpost/internal/engine"
	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/frames"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/report"
	"github.com/banshee-data/watchpost/internal/security"
	"github.com/banshee-data/watchpost/internal/signals"
	"github.com/banshee-data/watchpost/internal/timeutil"
	"github.com/google/uuid"
)

var (
	ErrMissingFilename     = errors.New("missing filename")
	ErrEmptyUpload         = errors.New("empty upload")
	ErrLatencyTargetMissed = errors.New("frame-by-frame latency target not met")
)

// Outcome labels for monitoring.Analyses.
const (
	OutcomeOK               = "ok"
	OutcomeRejected         = "rejected"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeLatencyMissed    = "latency_missed"
	OutcomeStoreFailed      = "store_failed"
)

// Predictor produces the fast-path distribution. *fastpath.Adapter implements it.
type Predictor interface {
	Predict(ctx context.Context, b *signals.Bundle) fastpath.Prediction
}

// Decider turns signals into incidents. *engine.Engine implements it.
type Decider interface {
	Decide(ctx context.Context, b *signals.Bundle, p fastpath.Prediction) engine.Decision
}

// ReportSaver persists finished reports. *db.ReportStore implements it.
type ReportSaver interface {
	SaveReport(ctx context.Context, r *report.Report) error
}

// Notifier raises alerts for severe reports. *notify.Notifier implements it.
type Notifier interface {
	NotifyIfNeeded(ctx context.Context, r *report.Report) (bool, error)
}

// Config wires a Service. FastPath, Store and Notifier are optional.
type Config struct {
	UploadsDir          string
	RejectOnLatencyMiss bool

	Opener    frames.Opener
	Extractor *signals.Extractor
	FastPath  Predictor
	Engine    Decider
	Assembler *report.Assembler
	Store     ReportSaver
	Notifier  Notifier
	Clock     timeutil.Clock
}

// Service is safe for concurrent use; each call is an independent pipeline.
type Service struct {
	cfg Config
}

func New(cfg Config) *Service {
	if cfg.Opener == nil {
		cfg.Opener = frames.ByExtension{}
	}
	if cfg.Extractor == nil {
		cfg.Extractor = signals.NewExtractor(signals.Params{}, nil)
	}
	if cfg.FastPath == nil {
		cfg.FastPath = fastpath.NewAdapter(nil, nil, 0)
	}
	if cfg.Engine == nil {
		cfg.Engine = engine.New(engine.Config{Offline: true}, nil, nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Assembler == nil {
		cfg.Assembler = report.NewAssembler(report.Flags{}, cfg.Clock)
	}
	return &Service{cfg: cfg}
}

// RequestError marks failures caused by the caller's input.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

func rejected(err error) error {
	monitoring.Analyses.WithLabelValues(OutcomeRejected).Inc()
	return &RequestError{Err: err}
}

// StageUpload writes body under the uploads directory with a
// timestamp-and-uuid name keeping the original extension. Empty bodies and
// unsupported extensions are rejected with a *RequestError.
func (s *Service) StageUpload(filename string, body io.Reader) (string, error) {
	if filename == "" {
		return "", rejected(ErrMissingFilename)
	}
	ext := security.Extension(filename)
	if ext == "" || !frames.Supported(ext) {
		return "", rejected(fmt.Errorf("%w: %q", frames.ErrUnsupportedFormat, security.SanitizeFilename(filename)))
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}
	name := s.cfg.Clock.Now().UTC().Format("20060102T150405Z") + "_" + uuidHex() + ext
	path, err := security.JoinWithin(s.cfg.UploadsDir, name)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil || n == 0 {
		os.Remove(path)
		if copyErr != nil {
			return "", fmt.Errorf("failed to stage upload: %w", copyErr)
		}
		return "", rejected(ErrEmptyUpload)
	}
	return path, nil
}

func uuidHex() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}

// AnalyzeUpload stages body and analyzes it. The staged copy is kept.
func (s *Service) AnalyzeUpload(ctx context.Context, filename string, body io.Reader) (*report.Report, error) {
	path, err := s.StageUpload(filename, body)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeFile(ctx, path, filename)
}

// AnalyzeFile runs the pipeline over a local video. sourceFilename is the
// name recorded on the report.
func (s *Service) AnalyzeFile(ctx context.Context, path, sourceFilename string) (*report.Report, error) {
	start := s.cfg.Clock.Now()
	bundle, err := s.cfg.Extractor.ExtractFile(s.cfg.Opener, path)
	if err != nil {
		if errors.Is(err, frames.ErrUnsupportedFormat) {
			return nil, rejected(err)
		}
		monitoring.Analyses.WithLabelValues(OutcomeExtractionFailed).Inc()
		return nil, err
	}
	bundle = bundle.WithTotalAnalysis(float64(s.cfg.Clock.Since(start)) / 1e6)

	if !bundle.Latency.MetTarget {
		monitoring.Logf("analysis: %s max frame latency %.1fms exceeds %.0fms target",
			sourceFilename, bundle.Latency.MaxMS, bundle.Latency.TargetMS)
		if s.cfg.RejectOnLatencyMiss {
			monitoring.Analyses.WithLabelValues(OutcomeLatencyMissed).Inc()
			return nil, fmt.Errorf("%w (<%.0fms): reduce input resolution or frame rate, or increase hardware capacity",
				ErrLatencyTargetMissed, bundle.Latency.TargetMS)
		}
	}

	prediction := s.cfg.FastPath.Predict(ctx, bundle)
	decision := s.cfg.Engine.Decide(ctx, bundle, prediction)
	r := s.cfg.Assembler.Assemble(report.Input{
		SourceFilename: sourceFilename,
		Bundle:         bundle,
		Prediction:     prediction,
		Decision:       decision,
	})

	if s.cfg.Store != nil {
		if err := s.cfg.Store.SaveReport(ctx, r); err != nil {
			monitoring.Analyses.WithLabelValues(OutcomeStoreFailed).Inc()
			return nil, fmt.Errorf("failed to save report: %w", err)
		}
	}
	if s.cfg.Notifier != nil {
		if raised, err := s.cfg.Notifier.NotifyIfNeeded(ctx, r); err != nil {
			monitoring.Logf("analysis: alert for report %s: %v", r.ID, err)
		} else if raised {
			monitoring.Logf("analysis: alert raised for report %s", r.ID)
		}
	}

	monitoring.Analyses.WithLabelValues(OutcomeOK).Inc()
	return r, nil
}
