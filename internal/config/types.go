package config

import "time"

// Config is the top-level JML daemon configuration, corresponding to jml.yaml.
type Config struct {
	DBPath     string          `yaml:"db_path" koanf:"db_path"`
	ListenAddr string          `yaml:"listen_addr" koanf:"listen_addr"`
	TenantID   string          `yaml:"tenant_id" koanf:"tenant_id"`
	Lifecycle  LifecycleConfig `yaml:"lifecycle" koanf:"lifecycle"`
	Scheduler  SchedulerConfig `yaml:"scheduler" koanf:"scheduler"`
	Notify     NotifyConfig    `yaml:"notify" koanf:"notify"`
}

// LifecycleConfig tunes the engine and detector.
type LifecycleConfig struct {
	// AccessReviewDays is how far ahead a mover's access review is scheduled.
	AccessReviewDays int `yaml:"access_review_days" koanf:"access_review_days"`
	// JoinerWindowDays is how recently a user must have been created to be detected as a joiner.
	JoinerWindowDays int `yaml:"joiner_window_days" koanf:"joiner_window_days"`
}

// SchedulerConfig controls the background loop of the daemon.
type SchedulerConfig struct {
	Workers        int           `yaml:"workers" koanf:"workers"`
	Interval       time.Duration `yaml:"interval" koanf:"interval"`
	DetectInterval time.Duration `yaml:"detect_interval" koanf:"detect_interval"`
	DetectEnabled  bool          `yaml:"detect_enabled" koanf:"detect_enabled"`
}

// NotifyConfig lists webhook subscribers.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks" koanf:"webhooks"`
	Timeout  time.Duration   `yaml:"timeout" koanf:"timeout"`
}

// WebhookConfig is one subscriber. An empty topic list receives everything.
type WebhookConfig struct {
	URL    string   `yaml:"url" koanf:"url"`
	Topics []string `yaml:"topics" koanf:"topics"`
}
