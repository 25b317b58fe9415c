package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/banshee-data/watchpost/internal/db"
	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/report"
	"github.com/banshee-data/watchpost/internal/timeutil"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

var now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func reportWith(incs ...incident.Incident) *report.Report {
	return &report.Report{ID: "rep-42", Summary: incident.Summary(incs), Incidents: incs, CreatedAt: now}
}

var (
	violent  = incident.Incident{Type: incident.ViolentActivity, Confidence: 0.775, TimestampSeconds: 1.5, Evidence: "e", RecommendedAction: "a"}
	weak     = incident.Incident{Type: incident.ViolentActivity, Confidence: 0.59, TimestampSeconds: 1.5}
	shoplift = incident.Incident{Type: incident.Shoplifting, Confidence: 0.95, TimestampSeconds: 1.5}
)

type memStore struct {
	alerts  []db.Alert
	emailed []int64
	err     error
}

func (m *memStore) SaveAlert(_ context.Context, a db.Alert) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.alerts = append(m.alerts, a)
	return int64(len(m.alerts)), nil
}

func (m *memStore) MarkEmailed(_ context.Context, id int64) error {
	m.emailed = append(m.emailed, id)
	return nil
}

type recordingSink struct {
	name     string
	payloads []Payload
	err      error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Send(_ context.Context, p Payload) error {
	r.payloads = append(r.payloads, p)
	return r.err
}

func TestNotifyIfNeeded_Trigger(t *testing.T) {
	tests := []struct {
		name      string
		incidents []incident.Incident
		want      bool
	}{
		{"severe at threshold", []incident.Incident{{Type: incident.ViolentActivity, Confidence: 0.6}}, true},
		{"severe above threshold", []incident.Incident{shoplift, violent}, true},
		{"severe below threshold", []incident.Incident{weak}, false},
		{"non-severe type", []incident.Incident{shoplift}, false},
		{"sentinel only", []incident.Incident{incident.Sentinel()}, false},
		{"fainting counts", []incident.Incident{{Type: incident.Fainting, Confidence: 0.9}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			sink := &recordingSink{name: "test"}
			n := New(Config{Store: store, Fanout: []Sink{sink}, Clock: timeutil.NewMockClock(now)})

			raised, err := n.NotifyIfNeeded(context.Background(), reportWith(tt.incidents...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, raised)
			if tt.want {
				assert.Len(t, store.alerts, 1)
				assert.Len(t, sink.payloads, 1)
			} else {
				assert.Empty(t, store.alerts)
				assert.Empty(t, sink.payloads)
			}
		})
	}
}

func TestNotifyIfNeeded_Payload(t *testing.T) {
	store := &memStore{}
	email := &recordingSink{name: "email"}
	fan := &recordingSink{name: "fan"}
	n := New(Config{Store: store, Email: email, Fanout: []Sink{nil, fan}, Clock: timeutil.NewMockClock(now)})

	r := reportWith(shoplift, violent, weak)
	raised, err := n.NotifyIfNeeded(context.Background(), r)
	require.NoError(t, err)
	require.True(t, raised)

	want := Payload{ReportID: "rep-42", Summary: r.Summary, CriticalIncidents: []incident.Incident{violent}}
	assert.Equal(t, []Payload{want}, email.payloads)
	assert.Equal(t, []Payload{want}, fan.payloads)

	require.Len(t, store.alerts, 1)
	assert.Equal(t, "rep-42", store.alerts[0].ReportID)
	assert.True(t, store.alerts[0].CreatedAt.Equal(now))
	assert.Equal(t, []int64{1}, store.emailed)
}

func TestNotifyIfNeeded_SinkFailures(t *testing.T) {
	store := &memStore{}
	email := &recordingSink{name: "email", err: errors.New("relay down")}
	fan1 := &recordingSink{name: "fan1", err: errors.New("broker down")}
	fan2 := &recordingSink{name: "fan2"}
	n := New(Config{Store: store, Email: email, Fanout: []Sink{fan1, fan2}})

	raised, err := n.NotifyIfNeeded(context.Background(), reportWith(violent))
	require.NoError(t, err)
	assert.True(t, raised)
	assert.Empty(t, store.emailed, "failed email is not marked sent")
	assert.Len(t, fan2.payloads, 1, "later sinks still run")
}

func TestNotifyIfNeeded_StoreFailure(t *testing.T) {
	sink := &recordingSink{name: "fan"}
	n := New(Config{Store: &memStore{err: errors.New("readonly")}, Fanout: []Sink{sink}})

	raised, err := n.NotifyIfNeeded(context.Background(), reportWith(violent))
	assert.True(t, raised)
	assert.Error(t, err)
	assert.Empty(t, sink.payloads)
}

func TestNotifyIfNeeded_SQLiteStore(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	r := reportWith(violent)
	require.NoError(t, db.NewReportStore(database).SaveReport(ctx, r))

	alerts := db.NewAlertStore(database)
	email := &recordingSink{name: "email"}
	_, err = New(Config{Store: alerts, Email: email}).NotifyIfNeeded(ctx, r)
	require.NoError(t, err)

	stored, err := alerts.ListAlerts(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].EmailSent)
	assert.Equal(t, []incident.Incident{violent}, stored[0].CriticalIncidents)
}

func TestEmailSink(t *testing.T) {
	cfg := SMTPConfig{Host: "smtp.example.com", Username: "bot", Password: "pw", From: "alerts@watchpost.local", To: "ops@example.com", AppName: "Watchpost"}

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	sink := NewEmailSink(cfg, func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	})
	require.NotNil(t, sink)

	p := Payload{ReportID: "rep-42", Summary: "s", CriticalIncidents: []incident.Incident{violent}}
	require.NoError(t, sink.Send(context.Background(), p))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "alerts@watchpost.local", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [Watchpost] Critical Incident rep-42\r\n")
	assert.Contains(t, gotMsg, "To: ops@example.com\r\n")

	parts := strings.SplitN(gotMsg, "\r\n\r\n", 2)
	require.Len(t, parts, 2)
	var body Payload
	require.NoError(t, json.Unmarshal([]byte(parts[1]), &body))
	assert.Equal(t, p, body)
}

func TestEmailSink_Configuration(t *testing.T) {
	full := SMTPConfig{Host: "h", Username: "u", Password: "p", To: "t"}
	assert.True(t, full.Configured())

	for _, cfg := range []SMTPConfig{
		{Username: "u", Password: "p", To: "t"},
		{Host: "h", Password: "p", To: "t"},
		{Host: "h", Username: "u", To: "t"},
		{Host: "h", Username: "u", Password: "p"},
	} {
		assert.False(t, cfg.Configured())
		assert.Nil(t, NewEmailSink(cfg, nil))
	}
}

func TestEmailSink_Errors(t *testing.T) {
	cfg := SMTPConfig{Host: "h", Port: 2525, Username: "u", Password: "p", To: "t", From: "f"}
	sink := NewEmailSink(cfg, func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("535 authentication failed")
	})
	err := sink.Send(context.Background(), Payload{ReportID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "h:2525")

	bad := NewEmailSink(SMTPConfig{Host: "h", Username: "u", Password: "p", To: "t\r\nBcc: x", From: "f"}, func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send called with header injection")
		return nil
	})
	assert.Error(t, bad.Send(context.Background(), Payload{ReportID: "r"}))
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewRedisSink(client, "", timeutil.NewMockClock(now))
	assert.Equal(t, "redis:"+DefaultRedisStream, sink.Name())

	p := Payload{ReportID: "rep-42", Summary: "Detected", CriticalIncidents: []incident.Incident{violent}}
	require.NoError(t, sink.Send(context.Background(), p))
	require.NoError(t, sink.Send(context.Background(), p))

	msgs, err := client.XRange(context.Background(), DefaultRedisStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	values := msgs[0].Values
	assert.Equal(t, "rep-42", values["report_id"])
	assert.Equal(t, "Detected", values["summary"])
	assert.Equal(t, strconv.FormatInt(now.Unix(), 10), values["timestamp"])

	var decoded Payload
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, p, decoded)
}

func TestRedisSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err := NewRedisSink(client, "s", nil).Send(context.Background(), Payload{ReportID: "r"})
	assert.Error(t, err)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *fakeToken {
	tok := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(tok.done)
	}
	return tok
}

func (f *fakeToken) Wait() bool { <-f.done; return true }
func (f *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-f.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (f *fakeToken) Done() <-chan struct{} { return f.done }
func (f *fakeToken) Error() error          { return f.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.topic, f.qos = topic, qos
	f.payload, _ = payload.([]byte)
	return f.token
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{token: newToken(nil, true)}
	sink := NewMQTTSink(pub, "")

	p := Payload{ReportID: "rep-42", CriticalIncidents: []incident.Incident{violent}}
	require.NoError(t, sink.Send(context.Background(), p))
	assert.Equal(t, DefaultMQTTTopic, pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var decoded Payload
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, p, decoded)
}

func TestMQTTSink_Errors(t *testing.T) {
	failing := NewMQTTSink(&fakePublisher{token: newToken(errors.New("not connected"), true)}, "site/a")
	err := failing.Send(context.Background(), Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site/a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	stuck := NewMQTTSink(&fakePublisher{token: newToken(nil, false)}, "site/a")
	assert.ErrorIs(t, stuck.Send(ctx, Payload{}), context.DeadlineExceeded)

	assert.ErrorIs(t, NewMQTTSink(nil, "").Send(context.Background(), Payload{}), errNoMQTTClient)
}
