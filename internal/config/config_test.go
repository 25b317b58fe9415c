package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetAppName(); got != "Watchpost" {
		t.Errorf("GetAppName() = %q, want Watchpost", got)
	}
	if got := cfg.GetDBPath(); got != filepath.Join("data", "watchpost.db") {
		t.Errorf("GetDBPath() = %q", got)
	}
	if got := cfg.GetUploadsDir(); got != filepath.Join("data", "uploads") {
		t.Errorf("GetUploadsDir() = %q", got)
	}
	if cfg.GetLatencyTargetMS() != 100 {
		t.Errorf("GetLatencyTargetMS() = %g, want 100", cfg.GetLatencyTargetMS())
	}
	if cfg.GetMaxFrames() != 600 {
		t.Errorf("GetMaxFrames() = %d, want 600", cfg.GetMaxFrames())
	}
	if !cfg.GetRejectOnLatencyMiss() || !cfg.GetOfflineMode() || !cfg.GetVideoNeverLeavesDevice() {
		t.Error("boolean defaults should all be true")
	}
	if cfg.GetReasoningTimeout() != 8*time.Second {
		t.Errorf("GetReasoningTimeout() = %v, want 8s", cfg.GetReasoningTimeout())
	}
	if cfg.GetFastPathTimeout() != 2*time.Second {
		t.Errorf("GetFastPathTimeout() = %v, want 2s", cfg.GetFastPathTimeout())
	}
	if cfg.GetSMTPPort() != 587 {
		t.Errorf("GetSMTPPort() = %d, want 587", cfg.GetSMTPPort())
	}
	if cfg.GetRemoteAPIKey() != "" || cfg.GetRedisAddr() != "" || cfg.GetMQTTBroker() != "" {
		t.Error("optional integrations should default to disabled")
	}
	if cfg.GetLogFormat() != "json" || cfg.GetLogLevel() != "info" {
		t.Errorf("log defaults = %q/%q", cfg.GetLogFormat(), cfg.GetLogLevel())
	}
}

func TestMustLoadDefault(t *testing.T) {
	cfg := MustLoadDefault()

	if cfg.AppName == nil || *cfg.AppName != "Watchpost" {
		t.Errorf("Expected AppName Watchpost, got %v", cfg.AppName)
	}
	if cfg.LocalEndpoint == nil || *cfg.LocalEndpoint != "http://127.0.0.1:11434/api/generate" {
		t.Errorf("Expected local endpoint default, got %v", cfg.LocalEndpoint)
	}
	if cfg.GetReasoningTimeout() != 8*time.Second {
		t.Errorf("GetReasoningTimeout() = %v", cfg.GetReasoningTimeout())
	}
	if cfg.GetLatencyTargetMS() != 100 {
		t.Errorf("GetLatencyTargetMS() = %g", cfg.GetLatencyTargetMS())
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "storage_root": "/var/lib/watchpost",
  "latency_target_ms": 50,
  "reject_on_latency_miss": false,
  "reasoning_timeout": "1500ms",
  "log_level": "DEBUG"
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GetLatencyTargetMS() != 50 {
		t.Errorf("GetLatencyTargetMS() = %g, want 50", cfg.GetLatencyTargetMS())
	}
	if cfg.GetRejectOnLatencyMiss() {
		t.Error("GetRejectOnLatencyMiss() = true, want false")
	}
	if cfg.GetReasoningTimeout() != 1500*time.Millisecond {
		t.Errorf("GetReasoningTimeout() = %v", cfg.GetReasoningTimeout())
	}
	if got := cfg.GetDBPath(); got != "/var/lib/watchpost/watchpost.db" {
		t.Errorf("GetDBPath() = %q", got)
	}
	if cfg.GetLogLevel() != "debug" {
		t.Errorf("GetLogLevel() = %q, want debug", cfg.GetLogLevel())
	}
	// Untouched fields keep defaults.
	if cfg.GetMaxFrames() != 600 {
		t.Errorf("GetMaxFrames() = %d, want 600", cfg.GetMaxFrames())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "cfg.yaml", `{}`, ".json extension"},
		{"syntax", "cfg.json", `{"listen": `, "parse config JSON"},
		{"latency", "cfg.json", `{"latency_target_ms": 0}`, "latency_target_ms"},
		{"frames", "cfg.json", `{"max_frames": -1}`, "max_frames"},
		{"port", "cfg.json", `{"smtp_port": 70000}`, "smtp_port"},
		{"timeout syntax", "cfg.json", `{"reasoning_timeout": "soon"}`, "reasoning_timeout"},
		{"timeout sign", "cfg.json", `{"fast_path_timeout": "-1s"}`, "fast_path_timeout"},
		{"endpoint", "cfg.json", `{"local_endpoint": "localhost:11434"}`, "local_endpoint"},
		{"log format", "cfg.json", `{"log_format": "xml"}`, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingAndOversized(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	big := `{"app_name": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", big)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	key := "from-file"
	cfg := &Config{RemoteAPIKey: &key}

	env := map[string]string{EnvSMTPPassword: "s3cret"}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.GetRemoteAPIKey() != "from-file" {
		t.Errorf("empty env var should not override, got %q", cfg.GetRemoteAPIKey())
	}
	if cfg.GetSMTPPassword() != "s3cret" {
		t.Errorf("GetSMTPPassword() = %q", cfg.GetSMTPPassword())
	}

	env[EnvRemoteAPIKey] = "from-env"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.GetRemoteAPIKey() != "from-env" {
		t.Errorf("GetRemoteAPIKey() = %q", cfg.GetRemoteAPIKey())
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv(EnvRemoteAPIKey, "env-key")
	cfg, err := Load(writeConfig(t, "cfg.json", `{}`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GetRemoteAPIKey() != "env-key" {
		t.Errorf("GetRemoteAPIKey() = %q", cfg.GetRemoteAPIKey())
	}
}
