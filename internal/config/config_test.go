package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TenantID != "default" {
		t.Errorf("expected default tenant %q, got %q", "default", cfg.TenantID)
	}
	if cfg.Lifecycle.AccessReviewDays != 30 {
		t.Errorf("expected default access_review_days 30, got %d", cfg.Lifecycle.AccessReviewDays)
	}
	if cfg.AccessReviewHorizon() != 30*24*time.Hour {
		t.Errorf("unexpected horizon %v", cfg.AccessReviewHorizon())
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Errorf("expected default interval 1m, got %v", cfg.Scheduler.Interval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jml.yaml")
	content := `
db_path: /var/lib/jml/jml.db
tenant_id: acme
lifecycle:
  access_review_days: 90
scheduler:
  interval: 30s
  detect_enabled: true
notify:
  webhooks:
    - url: https://hooks.acme.io/jml
      topics: ["jml.leaver_completed"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/var/lib/jml/jml.db" || cfg.TenantID != "acme" {
		t.Errorf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Lifecycle.AccessReviewDays != 90 {
		t.Errorf("access_review_days: got %d, want 90", cfg.Lifecycle.AccessReviewDays)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Lifecycle.JoinerWindowDays != 7 {
		t.Errorf("joiner_window_days: got %d, want default 7", cfg.Lifecycle.JoinerWindowDays)
	}
	if cfg.Scheduler.Interval != 30*time.Second || !cfg.Scheduler.DetectEnabled {
		t.Errorf("unexpected scheduler config: %+v", cfg.Scheduler)
	}
	if len(cfg.Notify.Webhooks) != 1 || cfg.Notify.Webhooks[0].Topics[0] != "jml.leaver_completed" {
		t.Errorf("unexpected webhooks: %+v", cfg.Notify.Webhooks)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != DefaultConfig().ListenAddr {
		t.Errorf("expected default listen_addr, got %q", cfg.ListenAddr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JML_TENANT_ID", "globex")
	t.Setenv("JML_SCHEDULER__INTERVAL", "5m")
	t.Setenv("JML_LIFECYCLE__ACCESS_REVIEW_DAYS", "14")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TenantID != "globex" {
		t.Errorf("tenant_id: got %q, want globex", cfg.TenantID)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Errorf("scheduler.interval: got %v, want 5m", cfg.Scheduler.Interval)
	}
	if cfg.Lifecycle.AccessReviewDays != 14 {
		t.Errorf("lifecycle.access_review_days: got %d, want 14", cfg.Lifecycle.AccessReviewDays)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"JML_DB_PATH":                       "db_path",
		"JML_SCHEDULER__DETECT_ENABLED":     "scheduler.detect_enabled",
		"JML_LIFECYCLE__JOINER_WINDOW_DAYS": "lifecycle.joiner_window_days",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jml.yaml")

	original := DefaultConfig()
	original.TenantID = "initech"
	original.Lifecycle.JoinerWindowDays = 3
	original.Notify.Webhooks = []WebhookConfig{{URL: "http://localhost:9000/hook"}}

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.TenantID != "initech" || loaded.Lifecycle.JoinerWindowDays != 3 {
		t.Errorf("round-trip mismatch: %+v", loaded)
	}
	if loaded.Scheduler.Interval != original.Scheduler.Interval {
		t.Errorf("interval: got %v, want %v", loaded.Scheduler.Interval, original.Scheduler.Interval)
	}
	if len(loaded.Notify.Webhooks) != 1 || loaded.Notify.Webhooks[0].URL != "http://localhost:9000/hook" {
		t.Errorf("webhooks: got %+v", loaded.Notify.Webhooks)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no db", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"no tenant", func(c *Config) { c.TenantID = "" }, "tenant_id"},
		{"zero review", func(c *Config) { c.Lifecycle.AccessReviewDays = 0 }, "access_review_days"},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval"},
		{"detect without interval", func(c *Config) {
			c.Scheduler.DetectEnabled = true
			c.Scheduler.DetectInterval = 0
		}, "detect_interval"},
		{"bad webhook", func(c *Config) { c.Notify.Webhooks = []WebhookConfig{{URL: "ftp://x"}} }, "webhooks[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
