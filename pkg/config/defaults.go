package config

import (
	"os"
	"strings"
	"time"

	"github.com/ccollicutt/logsift/pkg/parser"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// Default values for configuration.
const (
	DefaultTimezone       = "UTC"
	DefaultMaxLineSize    = parser.DefaultMaxLineSize
	DefaultWebhookTimeout = 10 * time.Second
)

// Environment variable names.
const (
	EnvLogSources = "LOGSIFT_LOG_SOURCES"
	EnvTimezone   = "LOGSIFT_TIMEZONE"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Rules:       []rules.Rule{},
		LogSources:  []string{},
		Timezone:    DefaultTimezone,
		MaxLineSize: DefaultMaxLineSize,
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() {
	if tz := os.Getenv(EnvTimezone); tz != "" {
		c.Timezone = tz
	}

	if sources := os.Getenv(EnvLogSources); sources != "" {
		c.LogSources = c.LogSources[:0]
		for _, s := range strings.Split(sources, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.LogSources = append(c.LogSources, s)
			}
		}
	}
}
