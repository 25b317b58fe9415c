// Package notify raises alerts for reports that contain severe incidents.
// Every alert is recorded locally first; email and the optional fan-out
// sinks (Redis stream, MQTT) are best effort.
package notify

import (
	"context"
	"fmt"

	"github.com/banshee-data/watchpost/internal/db"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/report"
	"github.com/banshee-data/watchpost/internal/timeutil"
)

// Payload is the alert body shared by every sink.
type Payload struct {
	ReportID          string              `json:"report_id"`
	Summary           string              `json:"summary"`
	CriticalIncidents []incident.Incident `json:"critical_incidents"`
}

// Sink delivers a payload somewhere outside the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// AlertRecorder persists alerts. *db.AlertStore implements it.
type AlertRecorder interface {
	SaveAlert(ctx context.Context, a db.Alert) (int64, error)
	MarkEmailed(ctx context.Context, id int64) error
}

// Config wires a Notifier. Email and Fanout entries may be nil.
type Config struct {
	Store  AlertRecorder
	Email  Sink
	Fanout []Sink
	Clock  timeutil.Clock
}

type Notifier struct {
	store  AlertRecorder
	email  Sink
	fanout []Sink
	clock  timeutil.Clock
}

func New(cfg Config) *Notifier {
	n := &Notifier{store: cfg.Store, email: cfg.Email, clock: cfg.Clock}
	if n.clock == nil {
		n.clock = timeutil.RealClock{}
	}
	for _, s := range cfg.Fanout {
		if s != nil {
			n.fanout = append(n.fanout, s)
		}
	}
	return n
}

// NotifyIfNeeded records and sends an alert for r when any incident is
// severe. It reports whether an alert was raised. Only a failure to record
// the alert is returned; sink failures are logged.
func (n *Notifier) NotifyIfNeeded(ctx context.Context, r *report.Report) (bool, error) {
	severe := r.Severe()
	if len(severe) == 0 {
		return false, nil
	}
	p := Payload{ReportID: r.ID, Summary: r.Summary, CriticalIncidents: severe}

	var alertID int64
	if n.store != nil {
		id, err := n.store.SaveAlert(ctx, db.Alert{
			ReportID:          p.ReportID,
			CreatedAt:         n.clock.Now().UTC(),
			Summary:           p.Summary,
			CriticalIncidents: p.CriticalIncidents,
		})
		if err != nil {
			return true, fmt.Errorf("failed to record alert: %w", err)
		}
		alertID = id
	}

	if n.email != nil {
		if err := n.email.Send(ctx, p); err != nil {
			monitoring.Logf("notify: %s failed for report %s: %v", n.email.Name(), p.ReportID, err)
		} else if n.store != nil {
			if err := n.store.MarkEmailed(ctx, alertID); err != nil {
				monitoring.Logf("notify: %v", err)
			}
		}
	}
	for _, s := range n.fanout {
		if err := s.Send(ctx, p); err != nil {
			monitoring.Logf("notify: %s failed for report %s: %v", s.Name(), p.ReportID, err)
		}
	}
	return true, nil
}
