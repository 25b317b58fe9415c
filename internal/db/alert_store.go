package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/watchpost/internal/incident"
)

// Alert is the locally persisted record of a severe report.
type Alert struct {
	ID                int64               `json:"alert_id"`
	ReportID          string              `json:"report_id"`
	CreatedAt         time.Time           `json:"created_at"`
	Summary           string              `json:"summary"`
	CriticalIncidents []incident.Incident `json:"critical_incidents"`
	EmailSent         bool                `json:"email_sent"`
}

// AlertStore writes to the alerts table. Alerts reference stored reports.
type AlertStore struct {
	db *DB
}

func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// SaveAlert inserts a and returns its id.
func (s *AlertStore) SaveAlert(ctx context.Context, a Alert) (int64, error) {
	payload, err := json.Marshal(a.CriticalIncidents)
	if err != nil {
		return 0, fmt.Errorf("failed to encode alert incidents: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (report_id, created_unix_nanos, summary, incidents_json, email_sent)
		VALUES (?, ?, ?, ?, ?)`,
		a.ReportID, a.CreatedAt.UnixNano(), a.Summary, string(payload), a.EmailSent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save alert for report %s: %w", a.ReportID, err)
	}
	return res.LastInsertId()
}

// MarkEmailed records that the alert's email went out.
func (s *AlertStore) MarkEmailed(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE alerts SET email_sent = 1 WHERE alert_id = ?`, id); err != nil {
		return fmt.Errorf("failed to update alert %d: %w", id, err)
	}
	return nil
}

// ListAlerts returns the alerts of one report in insertion order, or all
// alerts newest first when reportID is empty.
func (s *AlertStore) ListAlerts(ctx context.Context, reportID string) ([]Alert, error) {
	query := `SELECT alert_id, report_id, created_unix_nanos, summary, incidents_json, email_sent
		FROM alerts WHERE report_id = ? ORDER BY alert_id`
	args := []interface{}{reportID}
	if reportID == "" {
		query = `SELECT alert_id, report_id, created_unix_nanos, summary, incidents_json, email_sent
			FROM alerts ORDER BY created_unix_nanos DESC, alert_id DESC`
		args = nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var (
			a       Alert
			nanos   int64
			payload string
		)
		if err := rows.Scan(&a.ID, &a.ReportID, &nanos, &a.Summary, &payload, &a.EmailSent); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.CreatedAt = time.Unix(0, nanos).UTC()
		if err := json.Unmarshal([]byte(payload), &a.CriticalIncidents); err != nil {
			return nil, fmt.Errorf("failed to decode alert %d incidents: %w", a.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
