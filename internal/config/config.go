// Package config loads daemon settings from defaults, a YAML file and JML_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: JML_SCHEDULER__INTERVAL sets scheduler.interval.
const EnvPrefix = "JML_"

// DefaultDir is the per-user directory holding the database and config file.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".jml")
}

// DefaultPath is where the CLI looks for jml.yaml when --config is not given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "jml.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dbPath := filepath.Join(DefaultDir(), "jml.db")
	return &Config{
		DBPath:     dbPath,
		ListenAddr: "127.0.0.1:7480",
		TenantID:   "default",
		Lifecycle: LifecycleConfig{
			AccessReviewDays: 30,
			JoinerWindowDays: 7,
		},
		Scheduler: SchedulerConfig{
			Workers:        4,
			Interval:       time.Minute,
			DetectInterval: 15 * time.Minute,
			DetectEnabled:  false,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (JML_*). A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps JML_LIFECYCLE__ACCESS_REVIEW_DAYS to lifecycle.access_review_days.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if c.Lifecycle.AccessReviewDays <= 0 {
		return fmt.Errorf("lifecycle.access_review_days must be positive")
	}
	if c.Lifecycle.JoinerWindowDays <= 0 {
		return fmt.Errorf("lifecycle.joiner_window_days must be positive")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.DetectEnabled && c.Scheduler.DetectInterval <= 0 {
		return fmt.Errorf("scheduler.detect_interval must be positive when detection is enabled")
	}
	if c.Notify.Timeout < 0 {
		return fmt.Errorf("notify.timeout must be non-negative")
	}
	for i, w := range c.Notify.Webhooks {
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notify.webhooks[%d]: invalid url %q", i, w.URL)
		}
	}
	return nil
}

// AccessReviewHorizon returns the access review delay as a duration.
func (c *Config) AccessReviewHorizon() time.Duration {
	return time.Duration(c.Lifecycle.AccessReviewDays) * 24 * time.Hour
}

// JoinerWindow returns the joiner detection window as a duration.
func (c *Config) JoinerWindow() time.Duration {
	return time.Duration(c.Lifecycle.JoinerWindowDays) * 24 * time.Hour
}
