// Package extract reconstructs structured entries from unstructured log lines.
package extract

import (
	"strings"
	"time"
)

// Level is a normalized severity.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelDebug   Level = "DEBUG"
	LevelUnknown Level = "UNKNOWN"
)

// levelSynonyms maps level tokens seen in logs to their normalized level.
var levelSynonyms = map[string]Level{
	"FAILURE": LevelError,
	"FAILED":  LevelError,
	"WARNING": LevelWarn,
}

// NormalizeLevel upper-cases a level token and folds synonyms.
// Tokens outside the known set yield LevelUnknown.
func NormalizeLevel(token string) Level {
	upper := strings.ToUpper(strings.TrimSpace(token))
	if lvl, ok := levelSynonyms[upper]; ok {
		return lvl
	}
	switch Level(upper) {
	case LevelInfo, LevelWarn, LevelError, LevelDebug:
		return Level(upper)
	}
	return LevelUnknown
}

// LogEntry is the structured form of one raw line.
type LogEntry struct {
	// Timestamp is the parsed timestamp, or the extraction time when the
	// line carries no usable timestamp.
	Timestamp time.Time

	// Level is the normalized severity.
	Level Level

	// Message is the line with the timestamp and level removed.
	Message string

	// Raw is the original line.
	Raw string
}

// Explanation records which heuristics produced an entry.
type Explanation struct {
	// TimestampHeuristic names the timestamp heuristic that matched,
	// or is empty when none did.
	TimestampHeuristic string

	// TimestampText is the captured timestamp text.
	TimestampText string

	// TimestampSynthesized is true when no timestamp was found in the line.
	TimestampSynthesized bool

	// TimestampParseFailed is true when a timestamp was captured but could
	// not be parsed; the entry then carries the extraction time.
	TimestampParseFailed bool

	// LevelHeuristic names the level heuristic that matched, or one of
	// "default" (timestamp without level) and "guess" (keyword scan).
	LevelHeuristic string
}
