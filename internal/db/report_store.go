package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/watchpost/internal/report"
)

// ErrReportNotFound is returned by LoadReport for an unknown id.
var ErrReportNotFound = errors.New("report not found")

// DefaultListLimit caps ListReports when no limit is given.
const DefaultListLimit = 100

// ReportStore keeps the full report JSON alongside a few indexed columns.
type ReportStore struct {
	db *DB
}

func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// SaveReport inserts r, replacing any stored report with the same id.
func (s *ReportStore) SaveReport(ctx context.Context, r *report.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (
			report_id, source_filename, created_unix_nanos, summary, reasoning_mode,
			processing_time_ms, met_latency_target, severe_count, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (report_id) DO UPDATE SET
			source_filename = excluded.source_filename,
			created_unix_nanos = excluded.created_unix_nanos,
			summary = excluded.summary,
			reasoning_mode = excluded.reasoning_mode,
			processing_time_ms = excluded.processing_time_ms,
			met_latency_target = excluded.met_latency_target,
			severe_count = excluded.severe_count,
			report_json = excluded.report_json`,
		r.ID, r.SourceFilename, r.CreatedAt.UnixNano(), r.Summary, string(r.ReasoningMode),
		r.ProcessingTimeMS, r.MetLatencyTarget, len(r.Severe()), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	return nil
}

// LoadReport returns the stored report or ErrReportNotFound.
func (s *ReportStore) LoadReport(ctx context.Context, id string) (*report.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE report_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}
	return decodeReport(payload)
}

// ListReports returns up to limit reports, newest first. limit <= 0 means
// DefaultListLimit.
func (s *ReportStore) ListReports(ctx context.Context, limit int) ([]*report.Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_json FROM reports
		ORDER BY created_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []*report.Report{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

func decodeReport(payload string) (*report.Report, error) {
	var r report.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}
	return &r, nil
}
