// Package aggregate accumulates streaming statistics over extracted entries.
package aggregate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/logging"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// TimestampLayout is the interchange format for time range bounds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// TimeRange holds the earliest and latest timestamps seen.
// Both bounds are nil until an entry with a valid timestamp is processed.
type TimeRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// Result is an immutable snapshot of the aggregate.
type Result struct {
	TotalLines  int            `json:"totalLines"`
	TimeRange   TimeRange      `json:"timeRange"`
	LevelCounts map[string]int `json:"levelCounts"`
	EventCounts map[string]int `json:"eventCounts"`
}

// Aggregator folds entries into running statistics. One Aggregator
// belongs to one run and is not safe for concurrent use.
type Aggregator struct {
	totalLines  int
	start       time.Time
	end         time.Time
	levelCounts map[string]int
	eventCounts map[string]int
	logger      zerolog.Logger
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return NewWithLogger(logging.For("aggregate"))
}

// NewWithLogger creates an empty Aggregator that reports internal
// failures to logger.
func NewWithLogger(logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		levelCounts: make(map[string]int),
		eventCounts: make(map[string]int),
		logger:      logger,
	}
}

// ProcessEntry adds one entry and the rules it matched. It never fails:
// an internal fault is logged and the updates made before it are kept.
func (a *Aggregator) ProcessEntry(entry extract.LogEntry, matched []rules.Rule) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Err(fmt.Errorf("%v", r)).
				Str("line", entry.Raw).
				Msg("Error processing entry")
		}
	}()

	a.totalLines++

	if ts := entry.Timestamp; !ts.IsZero() {
		if a.start.IsZero() || ts.Before(a.start) {
			a.start = ts
		}
		if a.end.IsZero() || ts.After(a.end) {
			a.end = ts
		}
	}

	level := entry.Level
	if level == "" {
		level = extract.LevelUnknown
	}
	a.levelCounts[string(level)]++

	for _, rule := range matched {
		if rule.Tag != "" {
			a.eventCounts[rule.Tag]++
		}
	}
}

// Results returns a snapshot that later ProcessEntry calls do not affect.
func (a *Aggregator) Results() Result {
	res := Result{
		TotalLines:  a.totalLines,
		LevelCounts: make(map[string]int, len(a.levelCounts)),
		EventCounts: make(map[string]int, len(a.eventCounts)),
	}
	for k, v := range a.levelCounts {
		res.LevelCounts[k] = v
	}
	for k, v := range a.eventCounts {
		res.EventCounts[k] = v
	}
	if !a.start.IsZero() {
		res.TimeRange.Start = formatTime(a.start)
		res.TimeRange.End = formatTime(a.end)
	}
	return res
}

// Bounds returns the time range as instants; ok is false when no
// timestamp has been seen.
func (a *Aggregator) Bounds() (start, end time.Time, ok bool) {
	return a.start, a.end, !a.start.IsZero()
}

func formatTime(t time.Time) *string {
	s := t.UTC().Format(TimestampLayout)
	return &s
}
