package extract

import (
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/logging"
)

// Extractor maps raw lines to entries using ordered heuristics.
// It holds no per-line state and is safe for concurrent use.
type Extractor struct {
	timestamps []TimestampHeuristic
	levels     []LevelHeuristic
	loc        *time.Location
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLocation sets the location for timestamps that carry no zone
// (default UTC).
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock sets the clock used when a line has no usable timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger for parse diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor with the default heuristic tables.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		timestamps: DefaultTimestampHeuristics(),
		levels:     DefaultLevelHeuristics(),
		loc:        time.UTC,
		now:        time.Now,
		logger:     logging.For("extract"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract converts a line into an entry. It never fails: missing pieces
// fall back to defaults.
func (e *Extractor) Extract(line string) LogEntry {
	entry, _ := e.Explain(line)
	return entry
}

// Explain is Extract plus a record of which heuristics fired.
func (e *Extractor) Explain(line string) (LogEntry, Explanation) {
	var ex Explanation

	tsMatch, tsFound, tsHeuristic := e.findTimestamp(line)
	lvMatch, lvFound := e.findLevel(line, &ex)

	var level Level
	switch {
	case lvFound:
		level = NormalizeLevel(lvMatch.Value)
	case tsFound:
		level = LevelInfo
		ex.LevelHeuristic = LevelDefault
	default:
		level = guessLevel(line)
		ex.LevelHeuristic = LevelGuess
	}

	entry := LogEntry{
		Level:   level,
		Message: deriveMessage(line, tsMatch, lvMatch),
		Raw:     line,
	}

	if !tsFound {
		ex.TimestampSynthesized = true
		entry.Timestamp = e.now()
		return entry, ex
	}

	ex.TimestampHeuristic = tsHeuristic.Name
	ex.TimestampText = tsMatch.Value

	ts, err := tsHeuristic.Parse(tsMatch.Value, e.loc)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("timestamp", tsMatch.Value).
			Str("heuristic", tsHeuristic.Name).
			Msg("Invalid timestamp, using current time")
		ex.TimestampParseFailed = true
		ts = e.now()
	}
	entry.Timestamp = ts

	return entry, ex
}

func (e *Extractor) findTimestamp(line string) (Match, bool, TimestampHeuristic) {
	for _, h := range e.timestamps {
		if m, ok := h.Find(line); ok {
			return m, true, h
		}
	}
	return Match{}, false, TimestampHeuristic{}
}

func (e *Extractor) findLevel(line string, ex *Explanation) (Match, bool) {
	for _, h := range e.levels {
		if m, ok := h.Find(line); ok {
			ex.LevelHeuristic = h.Name
			return m, true
		}
	}
	return Match{}, false
}

// deriveMessage cuts the timestamp and level spans out of the line by
// position, merging them when they overlap, and strips leading separators.
// A cut between two blanks keeps only the left one.
func deriveMessage(line string, ts, lv Match) string {
	var cuts []Match
	for _, m := range []Match{ts, lv} {
		if m.spans() {
			cuts = append(cuts, m)
		}
	}
	if len(cuts) == 2 && cuts[1].Start < cuts[0].Start {
		cuts[0], cuts[1] = cuts[1], cuts[0]
	}
	if len(cuts) == 2 && cuts[1].Start <= cuts[0].End {
		if cuts[1].End > cuts[0].End {
			cuts[0].End = cuts[1].End
		}
		cuts = cuts[:1]
	}

	var b strings.Builder
	pos := 0
	for _, c := range cuts {
		b.WriteString(line[pos:c.Start])
		pos = c.End
		if out := b.String(); out != "" && isBlank(out[len(out)-1]) {
			for pos < len(line) && isBlank(line[pos]) {
				pos++
			}
		}
	}
	b.WriteString(line[pos:])

	msg := strings.TrimLeftFunc(b.String(), func(r rune) bool {
		return r == '-' || r == ':' || unicode.IsSpace(r)
	})
	msg = strings.TrimSpace(msg)

	if msg == "" {
		return line
	}
	return msg
}
