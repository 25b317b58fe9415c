package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/banshee-data/watchpost/internal/analysis"
	"github.com/banshee-data/watchpost/internal/api"
	"github.com/banshee-data/watchpost/internal/config"
	"github.com/banshee-data/watchpost/internal/db"
	"github.com/banshee-data/watchpost/internal/engine"
	"github.com/banshee-data/watchpost/internal/fastpath"
	"github.com/banshee-data/watchpost/internal/httputil"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/notify"
	"github.com/banshee-data/watchpost/internal/reasoning"
	"github.com/banshee-data/watchpost/internal/report"
	"github.com/banshee-data/watchpost/internal/signals"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
)

// app holds everything one process wires from a Config.
type app struct {
	cfg      *config.Config
	db       *db.DB
	service  *analysis.Service
	server   *api.Server
	redis    *redis.Client
	mqtt     mqtt.Client
	classify string
}

// loadConfig reads path. A missing file at the default path means "all
// defaults".
func loadConfig(path string) (*config.Config, error) {
	if path == config.DefaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := &config.Config{}
			cfg.ApplyEnv(os.Getenv)
			return cfg, nil
		}
	}
	return config.Load(path)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{cfg: cfg, db: database}

	fast, err := newFastPath(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	a.classify = "heuristic"
	if fast.Available() {
		a.classify = cfg.GetFastPathModelName()
	}

	timeout := cfg.GetReasoningTimeout()
	remote := reasoning.NewGemini(cfg.GetRemoteEndpoint(), cfg.GetRemoteModelName(), cfg.GetRemoteAPIKey(), timeout)
	var local engine.Enricher
	if cfg.GetLocalEndpoint() != "" {
		local = reasoning.NewOllama(cfg.GetLocalEndpoint(), cfg.GetLocalModelName(), timeout)
	}
	eng := engine.New(engine.Config{Offline: cfg.GetOfflineMode(), ReasoningTimeout: timeout}, remote, local)
	monitoring.Logf("reasoning mode at startup: %s", eng.SelectMode(ctx))

	extractor := signals.NewExtractor(signals.Params{
		TargetMS:  cfg.GetLatencyTargetMS(),
		MaxFrames: cfg.GetMaxFrames(),
	}, nil)
	monitoring.Logf("signal extraction: %+v", extractor.Params())

	store := db.NewReportStore(database)
	a.service = analysis.New(analysis.Config{
		UploadsDir:          cfg.GetUploadsDir(),
		RejectOnLatencyMiss: cfg.GetRejectOnLatencyMiss(),
		Extractor:           extractor,
		FastPath:            fast,
		Engine:              eng,
		Assembler: report.NewAssembler(report.Flags{
			OfflineMode:            cfg.GetOfflineMode(),
			VideoNeverLeavesDevice: cfg.GetVideoNeverLeavesDevice(),
		}, nil),
		Store:    store,
		Notifier: a.newNotifier(database),
	})

	a.server = api.NewServer(api.Info{
		AppName:                cfg.GetAppName(),
		Classifier:             a.classify,
		LatencyTargetMS:        cfg.GetLatencyTargetMS(),
		OfflineMode:            cfg.GetOfflineMode(),
		VideoNeverLeavesDevice: cfg.GetVideoNeverLeavesDevice(),
	}, a.service, store, api.Options{})
	return a, nil
}

func newFastPath(cfg *config.Config) (*fastpath.Adapter, error) {
	endpoint, labelsPath := cfg.GetFastPathEndpoint(), cfg.GetFastPathLabelsPath()
	if endpoint == "" || labelsPath == "" {
		monitoring.Logf("fast path disabled: endpoint or labels not configured")
		return fastpath.NewAdapter(nil, nil, 0), nil
	}
	labels, err := fastpath.LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	client := httputil.NewStandardClient(&http.Client{Timeout: cfg.GetFastPathTimeout()})
	model := fastpath.NewHTTPModel(client, endpoint, cfg.GetFastPathModelName())
	adapter := fastpath.NewAdapter(model, labels, cfg.GetFastPathTimeout())
	monitoring.Logf("fast path enabled: %s with %d labels", model.URL(), len(adapter.Labels()))
	return adapter, nil
}

// newNotifier wires the alert sinks that are configured. Broker failures at
// startup disable that sink only.
func (a *app) newNotifier(database *db.DB) *notify.Notifier {
	cfg := a.cfg
	email := notify.NewEmailSink(notify.SMTPConfig{
		Host:     cfg.GetSMTPHost(),
		Port:     cfg.GetSMTPPort(),
		Username: cfg.GetSMTPUsername(),
		Password: cfg.GetSMTPPassword(),
		From:     cfg.GetAlertEmailFrom(),
		To:       cfg.GetAlertEmailTo(),
		AppName:  cfg.GetAppName(),
	}, nil)
	if email == nil {
		monitoring.Logf("email alerts disabled: smtp not fully configured")
	}

	var fanout []notify.Sink
	if addr := cfg.GetRedisAddr(); addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: addr})
		fanout = append(fanout, notify.NewRedisSink(a.redis, cfg.GetRedisStream(), nil))
	}
	if broker := cfg.GetMQTTBroker(); broker != "" {
		hostname, _ := os.Hostname()
		client, err := notify.DialMQTT(broker, "watchpost-"+hostname)
		if err != nil {
			monitoring.Logf("mqtt alerts disabled: %v", err)
		} else {
			a.mqtt = client
			fanout = append(fanout, notify.NewMQTTSink(client, cfg.GetMQTTTopic()))
		}
	}

	return notify.New(notify.Config{
		Store:  db.NewAlertStore(database),
		Email:  email,
		Fanout: fanout,
	})
}

// handler is the full HTTP surface including admin routes.
func (a *app) handler() (http.Handler, error) {
	mux := a.server.ServeMux()
	if err := a.db.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return api.LoggingMiddleware(mux), nil
}

func (a *app) Close() {
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}
