// Package analyzer drives a single analysis run: lines flow from a source
// through the extractor and the rule matcher into an aggregator.
package analyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/ccollicutt/logsift/pkg/aggregate"
	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// State is the lifecycle position of a run.
type State string

const (
	StateIdle     State = "idle"
	StateReading  State = "reading"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

var (
	// ErrNoAnalyzableEntries is reported by Result.Err when a run finished
	// without any line matching a rule.
	ErrNoAnalyzableEntries = errors.New("no analyzable log entries found")

	// ErrAlreadyRun is returned when Analyze is called a second time.
	ErrAlreadyRun = errors.New("analyzer has already run")
)

// MatchHandler is called synchronously, in line order, for every line that
// matched at least one rule. Returning an error marks the line as failed.
type MatchHandler func(entry extract.LogEntry, matched []rules.Rule) error

// RunStats counts what happened during a run.
type RunStats struct {
	// LineCount is every line read, blank lines included.
	LineCount int `json:"lineCount"`

	// MatchCount is the number of lines that matched at least one rule.
	MatchCount int `json:"matchCount"`

	// ErrorCount is the number of lines whose processing failed.
	ErrorCount int `json:"errorCount"`
}

// Result is the outcome of a run.
type Result struct {
	State     State
	Stats     RunStats
	Aggregate aggregate.Result

	// Source is the name reported by the first line read.
	Source string

	// Excluded lists rules left out because their pattern did not compile.
	Excluded []*rules.CompileError

	StartTime time.Time
	EndTime   time.Time
}

// Err reports ErrNoAnalyzableEntries for a finished run without matches.
// Callers decide whether that is a failure.
func (r *Result) Err() error {
	if r.State == StateFinished && r.Stats.MatchCount == 0 {
		return ErrNoAnalyzableEntries
	}
	return nil
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// LineError describes a line that could not be processed. The run continues.
type LineError struct {
	Source  string
	LineNum int
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.LineNum, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// SourceError is returned when the line source fails. The run is Failed.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("reading log source: %v", e.Err)
	}
	return fmt.Sprintf("reading log source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
