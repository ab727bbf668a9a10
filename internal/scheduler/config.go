package scheduler

import (
	"time"
)

// Config controls scheduler cadence and which jobs this instance runs.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// EnabledJobs empty means every job runs (monolith mode).
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		JobTimeout:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig() Config {
	return DefaultConfig()
}
