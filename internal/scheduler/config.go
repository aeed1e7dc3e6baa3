// Package scheduler runs deferred lifecycle work in the background.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of events resumed concurrently.
	GlobalMax int `yaml:"global_max"`
	// Interval is how often due events are polled.
	Interval time.Duration `yaml:"interval"`
	// DetectEnabled turns on periodic joiner/leaver detection.
	DetectEnabled bool `yaml:"detect_enabled"`
	// DetectInterval is how often detection runs when enabled.
	DetectInterval time.Duration `yaml:"detect_interval"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax:      4,
		Interval:       time.Minute,
		DetectEnabled:  false,
		DetectInterval: 15 * time.Minute,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.GlobalMax <= 0 {
		c.GlobalMax = def.GlobalMax
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.DetectInterval <= 0 {
		c.DetectInterval = def.DetectInterval
	}
}
