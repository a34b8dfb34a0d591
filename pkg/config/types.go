// Package config loads and validates logsift rules files.
package config

import (
	"time"

	"github.com/ccollicutt/logsift/pkg/rules"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Rules []rules.Rule `yaml:"rules"`

	// LogSources are files or glob patterns analyzed when the command line
	// names none.
	LogSources []string `yaml:"log_sources,omitempty"`

	// Timezone is the IANA zone used for timestamps that carry no offset.
	Timezone string `yaml:"timezone,omitempty"`

	// MaxLineSize is the longest line, in bytes, a source accepts.
	MaxLineSize int `yaml:"max_line_size,omitempty"`

	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`

	// location is the loaded Timezone (populated during validation).
	location *time.Location
}

// Location returns the zone for timestamps without an offset. It is UTC
// until the config has been validated with a different timezone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnEvents fires only when at least one line matched (default).
	WebhookTriggerOnEvents WebhookTrigger = "on_events"
	// WebhookTriggerAlways fires after every analysis.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint for sending analysis results.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_events" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// MissingTokenEnv names the environment variable Token referred to when
	// that variable was unset at load time.
	MissingTokenEnv string `yaml:"-"`
}
