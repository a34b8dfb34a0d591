package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/logsift/pkg/rules"
)

// Load reads and validates a rules file. Rule patterns are not compiled
// here: a rule with a bad pattern is excluded at match time, not rejected.
func Load(_ context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors and fills in defaults.
func Validate(cfg *Config) error {
	if len(cfg.Rules) == 0 {
		return errors.New("rules: at least one rule is required")
	}

	for i := range cfg.Rules {
		if err := validateRule(&cfg.Rules[i]); err != nil {
			return fmt.Errorf("rules[%d] (%s): %w", i, cfg.Rules[i].Name, err)
		}
	}

	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	cfg.location = loc

	if cfg.MaxLineSize < 0 {
		return fmt.Errorf("max_line_size: must not be negative, got %d", cfg.MaxLineSize)
	}
	if cfg.MaxLineSize == 0 {
		cfg.MaxLineSize = DefaultMaxLineSize
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func validateRule(rule *rules.Rule) error {
	if rule.Name == "" {
		return errors.New("name is required")
	}

	if rule.Pattern == "" {
		return errors.New("pattern is required")
	}

	if !rule.Priority.Valid() {
		return fmt.Errorf("invalid priority %q (must be low, medium, high, or critical)", rule.Priority)
	}

	return nil
}

// Check reports the first problem with a webhook's URL or trigger without
// changing it. An empty trigger is allowed and defaults to on_events.
func (wh WebhookConfig) Check() error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}

	switch wh.Trigger {
	case "", WebhookTriggerOnEvents, WebhookTriggerAlways, WebhookTriggerNever:
		return nil
	default:
		return fmt.Errorf("invalid trigger %q (must be on_events, always, or never)", wh.Trigger)
	}
}

func validateWebhook(wh *WebhookConfig) error {
	if err := wh.Check(); err != nil {
		return err
	}

	wh.Token, wh.MissingTokenEnv = expandEnvVar(wh.Token)
	if wh.Trigger == "" {
		wh.Trigger = WebhookTriggerOnEvents
	}
	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}
	return nil
}

// expandEnvVar resolves a token written as ${VAR} or $VAR. Anything else
// is returned unchanged. When the variable is unset the value is empty and
// missing names it.
func expandEnvVar(s string) (value, missing string) {
	var name string
	switch {
	case strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}"):
		name = s[2 : len(s)-1]
	case strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${"):
		name = s[1:]
	default:
		return s, ""
	}

	if v, ok := os.LookupEnv(name); ok {
		return v, ""
	}
	return "", name
}
