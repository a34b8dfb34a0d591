package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/aggregate"
	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/logging"
	"github.com/ccollicutt/logsift/pkg/parser"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// Analyzer runs one analysis over one line source. It is not reusable and
// not safe for concurrent use; the Matcher it is given may be shared.
type Analyzer struct {
	matcher   *rules.Matcher
	extractor *extract.Extractor
	handlers  []MatchHandler
	logger    zerolog.Logger

	agg    *aggregate.Aggregator
	state  State
	stats  RunStats
	source string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExtractor replaces the default entry extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(a *Analyzer) {
		a.extractor = e
	}
}

// WithMatchHandler registers a handler for matched lines. Handlers run in
// registration order after the aggregator has seen the entry.
func WithMatchHandler(h MatchHandler) Option {
	return func(a *Analyzer) {
		if h != nil {
			a.handlers = append(a.handlers, h)
		}
	}
}

// WithLogger sets the logger for line and source failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// New creates an analyzer in the Idle state.
func New(matcher *rules.Matcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		matcher: matcher,
		logger:  logging.For("analyzer"),
		state:   StateIdle,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.extractor == nil {
		a.extractor = extract.New(extract.WithLogger(a.logger))
	}
	a.agg = aggregate.NewWithLogger(a.logger)

	return a
}

// State returns the current run state.
func (a *Analyzer) State() State {
	return a.state
}

// Stats returns the counters accumulated so far.
func (a *Analyzer) Stats() RunStats {
	return a.stats
}

// Analyze reads source to the end. A source failure leaves the analyzer
// Failed and returns the partial result together with a *SourceError.
// A run that reaches the end of the source is Finished even when nothing
// matched; see Result.Err.
func (a *Analyzer) Analyze(ctx context.Context, source parser.LineSource) (*Result, error) {
	if a.state != StateIdle {
		return nil, ErrAlreadyRun
	}

	start := time.Now()
	a.state = StateReading
	defer logging.LogDuration(a.logger, start, "analysis")

	for {
		if err := ctx.Err(); err != nil {
			return a.fail(start), &SourceError{Source: a.source, Err: err}
		}

		line, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			a.logger.Error().Err(err).Str("source", a.source).Msg("Log source failed")
			return a.fail(start), &SourceError{Source: a.source, Err: err}
		}

		if a.source == "" {
			a.source = line.Source
		}
		a.stats.LineCount++

		if strings.TrimSpace(line.Content) == "" {
			continue
		}

		if err := a.processLine(line); err != nil {
			a.stats.ErrorCount++
			a.logger.Warn().Err(err).
				Str("source", line.Source).
				Int("line", line.LineNum).
				Msg("Error processing line")
		}
	}

	a.state = StateFinished
	a.logger.Debug().
		Int("lines", a.stats.LineCount).
		Int("matches", a.stats.MatchCount).
		Int("errors", a.stats.ErrorCount).
		Msg("Analysis finished")

	return a.result(start), nil
}

// processLine extracts, matches and dispatches one non-blank line. Panics
// are turned into a *LineError so one bad line cannot end the run.
func (a *Analyzer) processLine(line *parser.LogLine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &LineError{Source: line.Source, LineNum: line.LineNum, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	entry := a.extractor.Extract(line.Content)
	matched := a.matcher.Match(line.Content)
	if len(matched) == 0 {
		return nil
	}

	a.agg.ProcessEntry(entry, matched)
	a.stats.MatchCount++

	for _, h := range a.handlers {
		if herr := h(entry, matched); herr != nil {
			return &LineError{Source: line.Source, LineNum: line.LineNum, Err: herr}
		}
	}
	return nil
}

func (a *Analyzer) fail(start time.Time) *Result {
	a.state = StateFailed
	return a.result(start)
}

func (a *Analyzer) result(start time.Time) *Result {
	return &Result{
		State:     a.state,
		Stats:     a.stats,
		Aggregate: a.agg.Results(),
		Source:    a.source,
		Excluded:  a.matcher.Excluded(),
		StartTime: start,
		EndTime:   time.Now(),
	}
}
