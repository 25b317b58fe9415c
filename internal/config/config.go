// Package config loads the watchpost settings file.
//
// Every field is a pointer so a partial file only overrides what it names;
// the Get* methods supply defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/watchpost.defaults.json"

// Environment variables that override secrets from the file.
const (
	EnvRemoteAPIKey = "WATCHPOST_REMOTE_API_KEY"
	EnvSMTPPassword = "WATCHPOST_SMTP_PASSWORD"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root settings document.
type Config struct {
	AppName     *string `json:"app_name,omitempty"`
	Listen      *string `json:"listen,omitempty"`
	StorageRoot *string `json:"storage_root,omitempty"`
	DBPath      *string `json:"db_path,omitempty"` // defaults to <storage_root>/watchpost.db

	// Extraction
	LatencyTargetMS     *float64 `json:"latency_target_ms,omitempty"`
	MaxFrames           *int     `json:"max_frames,omitempty"`
	RejectOnLatencyMiss *bool    `json:"reject_on_latency_miss,omitempty"`

	// Deployment flags stamped on reports
	OfflineMode            *bool `json:"offline_mode,omitempty"`
	VideoNeverLeavesDevice *bool `json:"video_never_leaves_device,omitempty"`

	// Reasoning
	RemoteEndpoint   *string `json:"remote_endpoint,omitempty"`
	RemoteModelName  *string `json:"remote_model_name,omitempty"`
	RemoteAPIKey     *string `json:"remote_api_key,omitempty"`
	LocalEndpoint    *string `json:"local_endpoint,omitempty"`
	LocalModelName   *string `json:"local_model_name,omitempty"`
	ReasoningTimeout *string `json:"reasoning_timeout,omitempty"` // duration string like "8s"

	// Fast path
	FastPathEndpoint   *string `json:"fast_path_endpoint,omitempty"`
	FastPathModelName  *string `json:"fast_path_model_name,omitempty"`
	FastPathLabelsPath *string `json:"fast_path_labels_path,omitempty"`
	FastPathTimeout    *string `json:"fast_path_timeout,omitempty"`

	// Alert fan-out
	RedisAddr   *string `json:"redis_addr,omitempty"`
	RedisStream *string `json:"redis_stream,omitempty"`
	MQTTBroker  *string `json:"mqtt_broker,omitempty"`
	MQTTTopic   *string `json:"mqtt_topic,omitempty"`

	// Email
	SMTPHost       *string `json:"smtp_host,omitempty"`
	SMTPPort       *int    `json:"smtp_port,omitempty"`
	SMTPUsername   *string `json:"smtp_username,omitempty"`
	SMTPPassword   *string `json:"smtp_password,omitempty"`
	AlertEmailFrom *string `json:"alert_email_from,omitempty"`
	AlertEmailTo   *string `json:"alert_email_to,omitempty"`

	LogLevel  *string `json:"log_level,omitempty"`
	LogFormat *string `json:"log_format,omitempty"`
}

// Load reads a Config from a JSON file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefault loads DefaultConfigPath from the working directory or one
// of its parents. It panics when the file cannot be found; intended for
// tests.
func MustLoadDefault() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overrides secret fields from getenv. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvRemoteAPIKey); v != "" {
		c.RemoteAPIKey = &v
	}
	if v := getenv(EnvSMTPPassword); v != "" {
		c.SMTPPassword = &v
	}
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.LatencyTargetMS != nil && *c.LatencyTargetMS <= 0 {
		return fmt.Errorf("latency_target_ms must be positive, got %g", *c.LatencyTargetMS)
	}
	if c.MaxFrames != nil && *c.MaxFrames <= 0 {
		return fmt.Errorf("max_frames must be positive, got %d", *c.MaxFrames)
	}
	if c.SMTPPort != nil && (*c.SMTPPort <= 0 || *c.SMTPPort > 65535) {
		return fmt.Errorf("smtp_port out of range: %d", *c.SMTPPort)
	}

	for name, v := range map[string]*string{
		"reasoning_timeout": c.ReasoningTimeout,
		"fast_path_timeout": c.FastPathTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	for name, v := range map[string]*string{
		"remote_endpoint":    c.RemoteEndpoint,
		"local_endpoint":     c.LocalEndpoint,
		"fast_path_endpoint": c.FastPathEndpoint,
	} {
		if v == nil || *v == "" {
			continue
		}
		u, err := url.Parse(*v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, *v)
		}
	}

	if c.LogFormat != nil {
		switch *c.LogFormat {
		case "", "json", "console":
		default:
			return fmt.Errorf("log_format must be json or console, got %q", *c.LogFormat)
		}
	}
	return nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) GetAppName() string     { return stringOr(c.AppName, "Watchpost") }
func (c *Config) GetListen() string      { return stringOr(c.Listen, ":8080") }
func (c *Config) GetStorageRoot() string { return stringOr(c.StorageRoot, "data") }

// GetDBPath returns db_path, or watchpost.db under the storage root.
func (c *Config) GetDBPath() string {
	return stringOr(c.DBPath, filepath.Join(c.GetStorageRoot(), "watchpost.db"))
}

// GetUploadsDir is where uploads are staged before extraction.
func (c *Config) GetUploadsDir() string {
	return filepath.Join(c.GetStorageRoot(), "uploads")
}

// GetLatencyTargetMS returns the per-frame budget in milliseconds.
func (c *Config) GetLatencyTargetMS() float64 {
	if c.LatencyTargetMS == nil {
		return 100
	}
	return *c.LatencyTargetMS
}

// GetMaxFrames returns the processed-frame cap per analysis.
func (c *Config) GetMaxFrames() int {
	if c.MaxFrames == nil {
		return 600
	}
	return *c.MaxFrames
}

// GetRejectOnLatencyMiss reports whether analyses that miss the latency
// target fail instead of producing a report.
func (c *Config) GetRejectOnLatencyMiss() bool { return boolOr(c.RejectOnLatencyMiss, true) }

func (c *Config) GetOfflineMode() bool            { return boolOr(c.OfflineMode, true) }
func (c *Config) GetVideoNeverLeavesDevice() bool { return boolOr(c.VideoNeverLeavesDevice, true) }

func (c *Config) GetRemoteEndpoint() string  { return stringOr(c.RemoteEndpoint, "") }
func (c *Config) GetRemoteModelName() string { return stringOr(c.RemoteModelName, "") }
func (c *Config) GetRemoteAPIKey() string    { return stringOr(c.RemoteAPIKey, "") }
func (c *Config) GetLocalEndpoint() string   { return stringOr(c.LocalEndpoint, "") }
func (c *Config) GetLocalModelName() string  { return stringOr(c.LocalModelName, "") }

// GetReasoningTimeout bounds each remote or local model call.
func (c *Config) GetReasoningTimeout() time.Duration {
	return durationOr(c.ReasoningTimeout, 8*time.Second)
}

func (c *Config) GetFastPathEndpoint() string   { return stringOr(c.FastPathEndpoint, "") }
func (c *Config) GetFastPathModelName() string  { return stringOr(c.FastPathModelName, "pose_event_detector") }
func (c *Config) GetFastPathLabelsPath() string { return stringOr(c.FastPathLabelsPath, "") }

func (c *Config) GetFastPathTimeout() time.Duration {
	return durationOr(c.FastPathTimeout, 2*time.Second)
}

func (c *Config) GetRedisAddr() string   { return stringOr(c.RedisAddr, "") }
func (c *Config) GetRedisStream() string { return stringOr(c.RedisStream, "watchpost:alerts") }
func (c *Config) GetMQTTBroker() string  { return stringOr(c.MQTTBroker, "") }
func (c *Config) GetMQTTTopic() string   { return stringOr(c.MQTTTopic, "watchpost/alerts") }

func (c *Config) GetSMTPHost() string { return stringOr(c.SMTPHost, "") }

func (c *Config) GetSMTPPort() int {
	if c.SMTPPort == nil {
		return 587
	}
	return *c.SMTPPort
}

func (c *Config) GetSMTPUsername() string   { return stringOr(c.SMTPUsername, "") }
func (c *Config) GetSMTPPassword() string   { return stringOr(c.SMTPPassword, "") }
func (c *Config) GetAlertEmailFrom() string { return stringOr(c.AlertEmailFrom, "alerts@watchpost.local") }
func (c *Config) GetAlertEmailTo() string   { return stringOr(c.AlertEmailTo, "") }

func (c *Config) GetLogLevel() string  { return strings.ToLower(stringOr(c.LogLevel, "info")) }
func (c *Config) GetLogFormat() string { return stringOr(c.LogFormat, "json") }
