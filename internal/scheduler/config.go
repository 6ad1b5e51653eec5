package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/talechto/internal/config"
)

// Config controls the janitor schedule.
type Config struct {
	Enabled    bool
	Schedule   string
	MaxAge     time.Duration
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Schedule:   "*/15 * * * *",
		MaxAge:     time.Hour,
		JobTimeout: 2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:  cfg.Janitor.Enabled,
		Schedule: strings.TrimSpace(cfg.Janitor.Schedule),
		MaxAge:   time.Duration(cfg.Janitor.MaxAgeHours) * time.Hour,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = defaults.Schedule
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaults.MaxAge
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
