package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/extract"
)

func newTestDetector(opts ...Option) *Detector {
	e := extract.New(
		extract.WithLogger(zerolog.Nop()),
		extract.WithClock(func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	return New(append([]Option{WithExtractor(e)}, opts...)...)
}

func TestDetector_DetectFromLines_Bracketed(t *testing.T) {
	lines := []string{
		"[2024-01-15 10:30:00] INFO Application started",
		"[2024-01-15 10:30:05] WARN Slow request",
		"[2024-01-15 10:30:10] Request completed",
	}

	result := newTestDetector().DetectFromLines(lines)

	if !result.HasTimestamps() {
		t.Fatal("Expected timestamps to be detected")
	}

	best := result.BestTimestamp()
	if best.Name != extract.TimestampBracketed {
		t.Errorf("Expected %s, got %s", extract.TimestampBracketed, best.Name)
	}
	if best.Confidence != 1.0 {
		t.Errorf("Expected 100%% confidence, got %.1f%%", best.Confidence*100)
	}
	if !best.ParsedTime.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("ParsedTime = %v", best.ParsedTime)
	}
	if best.SampleLine != lines[0] {
		t.Errorf("SampleLine = %q, want first line", best.SampleLine)
	}

	// Two lines with an explicit level, one falls back to the default
	if len(result.Levels) != 2 {
		t.Fatalf("Levels = %+v, want 2 entries", result.Levels)
	}
	if result.Levels[0].Name != extract.LevelDelimited || result.Levels[0].Count != 2 {
		t.Errorf("Levels[0] = %+v, want delimited-token x2", result.Levels[0])
	}
	if result.Levels[1].Name != extract.LevelDefault || result.Levels[1].Count != 1 {
		t.Errorf("Levels[1] = %+v, want default x1", result.Levels[1])
	}
}

func TestDetector_DetectFromLines_PythonLogging(t *testing.T) {
	lines := []string{
		"2024-01-15 10:30:00,123 - root - INFO - started",
		"2024-01-15 10:30:01,456 - root - ERROR - boom",
	}

	result := newTestDetector().DetectFromLines(lines)

	best := result.BestTimestamp()
	if best == nil || best.Name != extract.TimestampLeadingComma {
		t.Fatalf("BestTimestamp() = %+v, want %s", best, extract.TimestampLeadingComma)
	}
	if best.Count != 2 {
		t.Errorf("Count = %d, want 2", best.Count)
	}
}

func TestDetector_DetectFromLines_NoTimestamps(t *testing.T) {
	lines := []string{
		"Application started",
		"Error: disk full",
		"operator warned twice",
	}

	result := newTestDetector().DetectFromLines(lines)

	if result.HasTimestamps() {
		t.Error("Expected no timestamps")
	}
	if result.BestTimestamp() != nil {
		t.Error("BestTimestamp() should be nil")
	}
	if result.Synthesized != 3 {
		t.Errorf("Synthesized = %d, want 3", result.Synthesized)
	}

	counts := map[string]int{}
	for _, l := range result.Levels {
		counts[l.Name] = l.Count
	}
	if counts[extract.LevelGuess] != 2 || counts[extract.LevelWord] != 1 {
		t.Errorf("Level counts = %v, want guess=2 standalone-word=1", counts)
	}
}

func TestDetector_DetectFromLines_ParseFailures(t *testing.T) {
	lines := []string{
		"[main] connection established",
		"[worker-1] job picked up",
		"[2024-01-15T10:30:00Z] done",
	}

	result := newTestDetector().DetectFromLines(lines)

	if result.ParseFailures != 2 {
		t.Errorf("ParseFailures = %d, want 2", result.ParseFailures)
	}
	if len(result.FailureSamples) != 2 || result.FailureSamples[0] != lines[0] {
		t.Errorf("FailureSamples = %v", result.FailureSamples)
	}
	best := result.BestTimestamp()
	if best == nil || best.Name != extract.TimestampBracketToken || best.Count != 1 {
		t.Errorf("BestTimestamp() = %+v, want bracketed-token x1", best)
	}
}

func TestDetector_DetectFromLines_EmptyInput(t *testing.T) {
	result := newTestDetector().DetectFromLines(nil)

	if result.SampledLines != 0 {
		t.Errorf("SampledLines = %d, want 0", result.SampledLines)
	}
	if result.HasTimestamps() {
		t.Error("Expected no timestamps for empty input")
	}
}

func TestDetector_WithSampleSize(t *testing.T) {
	d := New(WithSampleSize(50))
	if d.sampleSize != 50 {
		t.Errorf("sampleSize = %d, want 50", d.sampleSize)
	}
}

func TestDetector_WithSampleSize_Invalid(t *testing.T) {
	d := New(WithSampleSize(-1))
	if d.sampleSize != 100 {
		t.Errorf("sampleSize = %d, want default 100", d.sampleSize)
	}
}

func TestDetector_DetectFromFile(t *testing.T) {
	content := "[2024-01-15 10:30:00] INFO one\n\n   \n[2024-01-15 10:30:01] INFO two\n[2024-01-15 10:30:02] INFO three\n"
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := newTestDetector(WithSampleSize(2)).DetectFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("DetectFromFile() error = %v", err)
	}

	if result.SampledLines != 2 {
		t.Errorf("SampledLines = %d, want 2", result.SampledLines)
	}
	if result.BlankLines != 2 {
		t.Errorf("BlankLines = %d, want 2", result.BlankLines)
	}
}

func TestDetector_DetectFromFile_NotFound(t *testing.T) {
	_, err := New().DetectFromFile(context.Background(), "/nonexistent/file.log")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}
