// Package webhook delivers analysis reports to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/logging"
	"github.com/ccollicutt/logsift/pkg/output"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// Client sends analysis reports to webhook endpoints.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new webhook client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		logger:     logging.For("webhook"),
	}
}

// SendOptions names one endpoint. A zero Timeout uses DefaultTimeout.
type SendOptions struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Response describes one delivery attempt.
type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
	Error      error
}

// Success reports a 2xx answer with no transport error.
func (r *Response) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Event names carried in Payload.Event and the X-Logsift-Event header.
const (
	EventMatches   = "analysis.matches"
	EventNoEntries = "analysis.no_entries"
)

// EventHeader names the request header that repeats Payload.Event.
const EventHeader = "X-Logsift-Event"

// maxResponseBody bounds how much of a webhook response is kept.
const maxResponseBody = 1 << 20

// Payload is the JSON body posted to a webhook.
type Payload struct {
	Event  string         `json:"event"`
	Source string         `json:"source"`
	Report *output.Report `json:"report"`
}

// NewPayload wraps a report, naming the event after its match outcome.
func NewPayload(report *output.Report) Payload {
	event := EventNoEntries
	if report.HasEvents() {
		event = EventMatches
	}
	return Payload{Event: event, Source: report.Metadata.Source, Report: report}
}

// Send posts a report to one endpoint. Transport failures and non-2xx
// statuses are reported through Response.Error; Send itself never panics
// on a bad endpoint.
func (c *Client) Send(ctx context.Context, report *output.Report, opts SendOptions) *Response {
	start := time.Now()
	resp := &Response{}
	done := func(err error) *Response {
		resp.Error = err
		resp.Duration = time.Since(start)
		return resp
	}

	payload := NewPayload(report)
	body, err := json.Marshal(payload)
	if err != nil {
		return done(fmt.Errorf("encoding payload: %w", err))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(body))
	if err != nil {
		return done(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "logsift-webhook")
	req.Header.Set(EventHeader, payload.Event)
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return done(fmt.Errorf("posting to %s: %w", opts.URL, err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	resp.StatusCode = httpResp.StatusCode
	resp.Body = string(respBody)
	if err != nil {
		return done(fmt.Errorf("reading response: %w", err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return done(fmt.Errorf("endpoint answered %s", httpResp.Status))
	}
	return done(nil)
}

// ShouldFire reports whether a webhook with the given trigger fires for a
// report. An empty trigger behaves like on_events.
func ShouldFire(trigger config.WebhookTrigger, report *output.Report) bool {
	switch trigger {
	case config.WebhookTriggerAlways:
		return true
	case config.WebhookTriggerNever:
		return false
	default:
		return report.HasEvents()
	}
}

// Dispatch sends the report to every webhook whose trigger fires. Each
// delivery is logged; failed deliveries are returned as one combined error.
func (c *Client) Dispatch(ctx context.Context, report *output.Report, hooks []config.WebhookConfig) error {
	var result *multierror.Error

	for _, wh := range hooks {
		if !ShouldFire(wh.Trigger, report) {
			continue
		}

		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		resp := c.Send(ctx, report, SendOptions{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout,
		})

		if !resp.Success() {
			c.logger.Warn().Err(resp.Error).Str("webhook", name).Msg("Webhook delivery failed")
			result = multierror.Append(result, fmt.Errorf("webhook %s: %w", name, resp.Error))
			continue
		}

		c.logger.Info().
			Str("webhook", name).
			Int("status", resp.StatusCode).
			Dur("duration", resp.Duration).
			Msg("Webhook sent")
	}

	return result.ErrorOrNil()
}
