package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ccollicutt/logsift/pkg/aggregate"
	"github.com/ccollicutt/logsift/pkg/analyzer"
	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/output"
)

func newTestReport(matches int) *output.Report {
	return &output.Report{
		Summary: output.Summary{
			LinesRead: 100,
			Matches:   matches,
			State:     analyzer.StateFinished,
		},
		Results: aggregate.Result{
			TotalLines:  matches,
			LevelCounts: map[string]int{"ERROR": matches},
			EventCounts: map[string]int{"error": matches},
		},
		Metadata: output.Metadata{
			RulesFile:  "rules.yaml",
			Source:     "test.log",
			AnalyzedAt: time.Now(),
			Duration:   time.Second,
		},
	}
}

func TestClient_Send_Success(t *testing.T) {
	var receivedBody []byte
	var receivedContentType string
	var receivedAuth string
	var receivedEvent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedAuth = r.Header.Get("Authorization")
		receivedEvent = r.Header.Get(EventHeader)
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient()
	report := newTestReport(3)

	resp := client.Send(context.Background(), report, SendOptions{
		URL: server.URL,
	})

	if !resp.Success() {
		t.Errorf("expected success, got error: %v", resp.Error)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	if resp.Body != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", resp.Body)
	}

	if receivedContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", receivedContentType)
	}

	if receivedAuth != "" {
		t.Errorf("expected no auth header, got %s", receivedAuth)
	}

	if receivedEvent != EventMatches {
		t.Errorf("expected %s header %q, got %q", EventHeader, EventMatches, receivedEvent)
	}

	var payload struct {
		Event  string                 `json:"event"`
		Source string                 `json:"source"`
		Report map[string]interface{} `json:"report"`
	}
	if err := json.Unmarshal(receivedBody, &payload); err != nil {
		t.Fatalf("failed to parse received payload: %v", err)
	}

	if payload.Event != EventMatches || payload.Source != "test.log" {
		t.Errorf("event = %q, source = %q", payload.Event, payload.Source)
	}
	if _, ok := payload.Report["summary"]; !ok {
		t.Error("payload report missing summary field")
	}
	if _, ok := payload.Report["results"]; !ok {
		t.Error("payload report missing results field")
	}
}

func TestNewPayload(t *testing.T) {
	if got := NewPayload(newTestReport(2)).Event; got != EventMatches {
		t.Errorf("Event with matches = %q, want %q", got, EventMatches)
	}
	if got := NewPayload(newTestReport(0)).Event; got != EventNoEntries {
		t.Errorf("Event without matches = %q, want %q", got, EventNoEntries)
	}
}

func TestClient_Send_WithBearerToken(t *testing.T) {
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	report := newTestReport(3)

	resp := client.Send(context.Background(), report, SendOptions{
		URL:   server.URL,
		Token: "secret-token-123",
	})

	if !resp.Success() {
		t.Errorf("expected success, got error: %v", resp.Error)
	}

	if receivedAuth != "Bearer secret-token-123" {
		t.Errorf("expected Bearer token, got %s", receivedAuth)
	}
}

func TestClient_Send_Failures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name       string
		opts       SendOptions
		wantStatus int
		wantBody   string
	}{
		{"server error", SendOptions{URL: failing.URL}, http.StatusInternalServerError, `{"error":"internal error"}`},
		{"timeout", SendOptions{URL: slow.URL, Timeout: 50 * time.Millisecond}, 0, ""},
		{"invalid url", SendOptions{URL: "://invalid-url"}, 0, ""},
		{"connection refused", SendOptions{URL: closedURL, Timeout: time.Second}, 0, ""},
	}

	client := NewClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := client.Send(context.Background(), newTestReport(0), tt.opts)

			if resp.Success() || resp.Error == nil {
				t.Fatalf("expected failure, got status %d err %v", resp.StatusCode, resp.Error)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if resp.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", resp.Body, tt.wantBody)
			}
		})
	}
}

func TestResponse_Success(t *testing.T) {
	tests := []struct {
		name        string
		resp        Response
		wantSuccess bool
	}{
		{"200 OK", Response{StatusCode: 200}, true},
		{"201 Created", Response{StatusCode: 201}, true},
		{"204 No Content", Response{StatusCode: 204}, true},
		{"400 Bad Request", Response{StatusCode: 400}, false},
		{"500 Server Error", Response{StatusCode: 500}, false},
		{"With Error", Response{StatusCode: 200, Error: io.EOF}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Success(); got != tt.wantSuccess {
				t.Errorf("Success() = %v, want %v", got, tt.wantSuccess)
			}
		})
	}
}

func TestShouldFire(t *testing.T) {
	withEvents := newTestReport(3)
	noEvents := newTestReport(0)

	tests := []struct {
		trigger config.WebhookTrigger
		report  *output.Report
		want    bool
	}{
		{config.WebhookTriggerAlways, noEvents, true},
		{config.WebhookTriggerNever, withEvents, false},
		{config.WebhookTriggerOnEvents, withEvents, true},
		{config.WebhookTriggerOnEvents, noEvents, false},
		{"", withEvents, true},
		{"", noEvents, false},
	}

	for _, tt := range tests {
		if got := ShouldFire(tt.trigger, tt.report); got != tt.want {
			t.Errorf("ShouldFire(%q, matches=%d) = %v, want %v",
				tt.trigger, tt.report.Summary.Matches, got, tt.want)
		}
	}
}

func TestClient_Dispatch(t *testing.T) {
	var hits []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	hooks := []config.WebhookConfig{
		{Name: "ok", URL: server.URL + "/ok", Trigger: config.WebhookTriggerOnEvents},
		{Name: "never", URL: server.URL + "/never", Trigger: config.WebhookTriggerNever},
		{Name: "broken", URL: server.URL + "/broken", Trigger: config.WebhookTriggerAlways},
	}

	err := NewClient().Dispatch(context.Background(), newTestReport(3), hooks)
	if err == nil {
		t.Fatal("Dispatch() expected error for failing webhook")
	}
	if !strings.Contains(err.Error(), "webhook broken") {
		t.Errorf("Dispatch() error = %v, want mention of broken webhook", err)
	}
	if strings.Join(hits, ",") != "/ok,/broken" {
		t.Errorf("hits = %v, want [/ok /broken]", hits)
	}

	hits = nil
	if err := NewClient().Dispatch(context.Background(), newTestReport(0), hooks[:2]); err != nil {
		t.Errorf("Dispatch() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want none for a report without events", hits)
	}
}
