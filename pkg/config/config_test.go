package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ccollicutt/logsift/pkg/rules"
)

func validConfig() *Config {
	return &Config{
		Rules: []rules.Rule{{
			Name:    "Error Detection",
			Pattern: "ERROR",
			Tag:     "error",
		}},
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
rules:
  - name: Error Detection
    pattern: 'ERROR'
    tag: error
    priority: high
  - name: Timeouts
    pattern: 'time(d)?\s?out'
    tag: timeout
log_sources:
  - /var/log/*.log
timezone: Europe/Berlin
`
	path := writeTempFile(t, "rules.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Rules) != 2 {
		t.Fatalf("Rules = %d, want 2", len(cfg.Rules))
	}
	if cfg.Rules[0].Priority != rules.PriorityHigh {
		t.Errorf("Rules[0].Priority = %q, want %q", cfg.Rules[0].Priority, rules.PriorityHigh)
	}
	if cfg.Rules[1].Pattern != `time(d)?\s?out` {
		t.Errorf("Rules[1].Pattern = %q", cfg.Rules[1].Pattern)
	}
	if len(cfg.LogSources) != 1 {
		t.Errorf("LogSources = %d, want 1", len(cfg.LogSources))
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, want Europe/Berlin", cfg.Location())
	}
	if cfg.MaxLineSize != DefaultMaxLineSize {
		t.Errorf("MaxLineSize = %d, want %d", cfg.MaxLineSize, DefaultMaxLineSize)
	}
}

func TestLoad_InvalidPatternIsNotAnError(t *testing.T) {
	content := `
rules:
  - name: Lookahead
    pattern: 'foo(?=bar)'
`
	path := writeTempFile(t, "rules.yaml", content)
	if _, err := Load(context.Background(), path); err != nil {
		t.Errorf("Load() error = %v, want nil", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/rules.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "invalid.yaml", `invalid: yaml: content: [`)
	_, err := Load(context.Background(), path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvTimezone, "America/New_York")
	t.Setenv(EnvLogSources, "/a.log, /b/*.log,")

	content := `
rules:
  - name: test
    pattern: ERROR
log_sources:
  - /ignored.log
timezone: UTC
`
	path := writeTempFile(t, "rules.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q, want America/New_York", cfg.Timezone)
	}
	want := []string{"/a.log", "/b/*.log"}
	if strings.Join(cfg.LogSources, "|") != strings.Join(want, "|") {
		t.Errorf("LogSources = %v, want %v", cfg.LogSources, want)
	}
}

func TestValidate_NoRules(t *testing.T) {
	cfg := &Config{Rules: []rules.Rule{}}
	if err := Validate(cfg); err == nil {
		t.Error("Validate() expected error for empty rules")
	}
}

func TestValidate_RuleFields(t *testing.T) {
	tests := []struct {
		name    string
		rule    rules.Rule
		wantErr string
	}{
		{"missing name", rules.Rule{Pattern: "x"}, "name is required"},
		{"missing pattern", rules.Rule{Name: "x"}, "pattern is required"},
		{"bad priority", rules.Rule{Name: "x", Pattern: "x", Priority: "urgent"}, "invalid priority"},
		{"valid", rules.Rule{Name: "x", Pattern: "x", Priority: rules.PriorityCritical}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Rules: []rules.Rule{tt.rule}}
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location() = %v, want UTC", cfg.Location())
	}
	if cfg.MaxLineSize != DefaultMaxLineSize {
		t.Errorf("MaxLineSize = %d, want %d", cfg.MaxLineSize, DefaultMaxLineSize)
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Timezone = "Mars/Olympus_Mons"
	if err := Validate(cfg); err == nil {
		t.Error("Validate() expected error for unknown timezone")
	}
}

func TestValidate_NegativeMaxLineSize(t *testing.T) {
	cfg := validConfig()
	cfg.MaxLineSize = -1
	if err := Validate(cfg); err == nil {
		t.Error("Validate() expected error for negative max_line_size")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}
	if cfg.MaxLineSize != DefaultMaxLineSize {
		t.Errorf("MaxLineSize = %d, want %d", cfg.MaxLineSize, DefaultMaxLineSize)
	}
	if cfg.Rules == nil || cfg.LogSources == nil {
		t.Error("DefaultConfig() should initialize slices")
	}
}

func TestValidate_Webhook(t *testing.T) {
	tests := []struct {
		name    string
		webhook WebhookConfig
		wantErr bool
	}{
		{"https", WebhookConfig{Name: "ops", URL: "https://example.com/webhook", Trigger: WebhookTriggerOnEvents}, false},
		{"http", WebhookConfig{URL: "http://localhost:8080/webhook"}, false},
		{"missing url", WebhookConfig{Name: "no-url"}, true},
		{"ftp scheme", WebhookConfig{URL: "ftp://example.com/webhook"}, true},
		{"no host", WebhookConfig{URL: "https:///webhook"}, true},
		{"bad trigger", WebhookConfig{URL: "https://example.com", Trigger: "on_issues"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Webhooks = []WebhookConfig{tt.webhook}
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Webhook_AllTriggers(t *testing.T) {
	triggers := []WebhookTrigger{
		WebhookTriggerOnEvents,
		WebhookTriggerAlways,
		WebhookTriggerNever,
	}

	for _, trigger := range triggers {
		cfg := validConfig()
		cfg.Webhooks = []WebhookConfig{{URL: "https://example.com/webhook", Trigger: trigger}}
		if err := Validate(cfg); err != nil {
			t.Errorf("Validate() with trigger %q error = %v", trigger, err)
		}
	}
}

func TestValidate_Webhook_Defaults(t *testing.T) {
	cfg := validConfig()
	cfg.Webhooks = []WebhookConfig{{URL: "https://example.com/webhook"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Webhooks[0].Trigger != WebhookTriggerOnEvents {
		t.Errorf("Default trigger = %v, want %v", cfg.Webhooks[0].Trigger, WebhookTriggerOnEvents)
	}
	if cfg.Webhooks[0].Timeout != DefaultWebhookTimeout {
		t.Errorf("Default timeout = %v, want %v", cfg.Webhooks[0].Timeout, DefaultWebhookTimeout)
	}
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_TOKEN", "secret-value")
	t.Setenv("TEST_EMPTY_TOKEN", "")

	tests := []struct {
		input   string
		want    string
		missing string
	}{
		{"${TEST_WEBHOOK_TOKEN}", "secret-value", ""},
		{"$TEST_WEBHOOK_TOKEN", "secret-value", ""},
		{"${TEST_EMPTY_TOKEN}", "", ""},
		{"plain-value", "plain-value", ""},
		{"", "", ""},
		{"${NONEXISTENT_VAR}", "", "NONEXISTENT_VAR"},
		{"$NONEXISTENT_VAR", "", "NONEXISTENT_VAR"},
	}

	for _, tt := range tests {
		got, missing := expandEnvVar(tt.input)
		if got != tt.want || missing != tt.missing {
			t.Errorf("expandEnvVar(%q) = %q, %q, want %q, %q", tt.input, got, missing, tt.want, tt.missing)
		}
	}
}

func TestLoad_WithWebhooks(t *testing.T) {
	t.Setenv("OPS_TOKEN", "s3cret")

	content := `
rules:
  - name: test-rule
    pattern: 'ERROR'
    tag: error
webhooks:
  - name: ops
    url: "https://example.com/webhook"
    token: ${OPS_TOKEN}
    trigger: on_events
    timeout: 30s
  - url: "https://backup.example.com/webhook"
    trigger: always
`
	path := writeTempFile(t, "rules-with-webhooks.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Webhooks) != 2 {
		t.Fatalf("Webhooks = %d, want 2", len(cfg.Webhooks))
	}
	if cfg.Webhooks[0].Token != "s3cret" {
		t.Errorf("Webhook[0].Token = %q, want expanded value", cfg.Webhooks[0].Token)
	}
	if cfg.Webhooks[0].Timeout != 30*time.Second {
		t.Errorf("Webhook[0].Timeout = %v, want 30s", cfg.Webhooks[0].Timeout)
	}
	if cfg.Webhooks[0].MissingTokenEnv != "" {
		t.Errorf("Webhook[0].MissingTokenEnv = %q, want empty", cfg.Webhooks[0].MissingTokenEnv)
	}
	if cfg.Webhooks[1].Trigger != WebhookTriggerAlways {
		t.Errorf("Webhook[1].Trigger = %v, want %v", cfg.Webhooks[1].Trigger, WebhookTriggerAlways)
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestWebhookConfig_Check(t *testing.T) {
	tests := []struct {
		name    string
		hook    WebhookConfig
		wantErr string
	}{
		{"valid", WebhookConfig{URL: "https://example.com/hook"}, ""},
		{"missing url", WebhookConfig{}, "url is required"},
		{"bad scheme", WebhookConfig{URL: "ftp://example.com"}, "scheme"},
		{"no host", WebhookConfig{URL: "http://"}, "host"},
		{"bad trigger", WebhookConfig{URL: "https://example.com", Trigger: "on_issues"}, "invalid trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hook.Check()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Check() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	hook := WebhookConfig{URL: "https://example.com"}
	if err := hook.Check(); err != nil || hook.Trigger != "" {
		t.Error("Check() must not fill in defaults")
	}
}

func TestLoad_WebhookMissingTokenEnv(t *testing.T) {
	content := `
rules:
  - name: test-rule
    pattern: 'ERROR'
webhooks:
  - url: "https://example.com/webhook"
    token: ${LOGSIFT_TEST_UNSET_TOKEN}
`
	path := writeTempFile(t, "rules.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhooks[0].Token != "" || cfg.Webhooks[0].MissingTokenEnv != "LOGSIFT_TEST_UNSET_TOKEN" {
		t.Errorf("Token = %q, MissingTokenEnv = %q", cfg.Webhooks[0].Token, cfg.Webhooks[0].MissingTokenEnv)
	}
}
