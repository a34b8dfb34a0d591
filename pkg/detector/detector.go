// Package detector profiles how the entry extraction heuristics behave on a
// sample of a log file.
package detector

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/parser"
)

// DetectionResult holds the result of profiling a log sample.
type DetectionResult struct {
	SampledLines int // Number of non-blank lines examined
	BlankLines   int // Blank lines skipped while sampling

	// Timestamps and Levels are sorted by count descending.
	Timestamps []HeuristicMatch
	Levels     []HeuristicMatch

	// Synthesized counts lines with no timestamp, which get the current time.
	Synthesized int

	// ParseFailures counts lines whose captured timestamp did not parse.
	ParseFailures  int
	FailureSamples []string
}

// HeuristicMatch reports how often one heuristic fired.
type HeuristicMatch struct {
	Name       string
	Count      int
	Confidence float64   // 0.0 to 1.0 (share of sampled lines)
	SampleLine string    // First line the heuristic fired on
	ParsedTime time.Time // Timestamp parsed from the sample, timestamp heuristics only
}

const maxFailureSamples = 3

// Detector samples lines and runs them through an extractor.
type Detector struct {
	extractor   *extract.Extractor
	sampleSize  int
	maxLineSize int
}

// Option configures the Detector.
type Option func(*Detector)

// WithSampleSize sets the number of lines to sample (default 100).
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(d *Detector) {
		d.extractor = e
	}
}

// WithMaxLineSize sets the longest line accepted while sampling.
func WithMaxLineSize(n int) Option {
	return func(d *Detector) {
		d.maxLineSize = n
	}
}

// New creates a new Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		sampleSize: 100,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.extractor == nil {
		d.extractor = extract.New()
	}
	return d
}

// DetectFromFile profiles the first non-blank lines of a file.
func (d *Detector) DetectFromFile(ctx context.Context, path string) (*DetectionResult, error) {
	source := parser.NewFileSource(path, d.maxLineSize)
	defer source.Close()
	return d.DetectFromSource(ctx, source)
}

// DetectFromSource profiles up to the sample size of non-blank lines.
func (d *Detector) DetectFromSource(ctx context.Context, source parser.LineSource) (*DetectionResult, error) {
	var lines []string
	blank := 0

	for len(lines) < d.sampleSize {
		line, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line.Content) == "" {
			blank++
			continue
		}
		lines = append(lines, line.Content)
	}

	result := d.DetectFromLines(lines)
	result.BlankLines = blank
	return result, nil
}

// DetectFromLines profiles a slice of log lines. Blank lines are ignored.
func (d *Detector) DetectFromLines(lines []string) *DetectionResult {
	result := &DetectionResult{}

	timestamps := make(map[string]*HeuristicMatch)
	levels := make(map[string]*HeuristicMatch)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.SampledLines++

		entry, ex := d.extractor.Explain(line)

		switch {
		case ex.TimestampSynthesized:
			result.Synthesized++
		case ex.TimestampParseFailed:
			result.ParseFailures++
			if len(result.FailureSamples) < maxFailureSamples {
				result.FailureSamples = append(result.FailureSamples, line)
			}
		default:
			m := tally(timestamps, ex.TimestampHeuristic, line)
			if m.ParsedTime.IsZero() {
				m.ParsedTime = entry.Timestamp
			}
		}

		tally(levels, ex.LevelHeuristic, line)
	}

	result.Timestamps = ranked(timestamps, result.SampledLines)
	result.Levels = ranked(levels, result.SampledLines)
	return result
}

func tally(counts map[string]*HeuristicMatch, name, line string) *HeuristicMatch {
	m, ok := counts[name]
	if !ok {
		m = &HeuristicMatch{Name: name, SampleLine: line}
		counts[name] = m
	}
	m.Count++
	return m
}

func ranked(counts map[string]*HeuristicMatch, total int) []HeuristicMatch {
	out := make([]HeuristicMatch, 0, len(counts))
	for _, m := range counts {
		if total > 0 {
			m.Confidence = float64(m.Count) / float64(total)
		}
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BestTimestamp returns the timestamp heuristic that fired most, or nil
// if no line carried a parseable timestamp.
func (r *DetectionResult) BestTimestamp() *HeuristicMatch {
	if len(r.Timestamps) == 0 {
		return nil
	}
	return &r.Timestamps[0]
}

// HasTimestamps returns true if at least one line carried a parseable timestamp.
func (r *DetectionResult) HasTimestamps() bool {
	return len(r.Timestamps) > 0
}
