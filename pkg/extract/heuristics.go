package extract

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Match is a heuristic hit: Text is the substring removed from the message
// and sits at line[Start:End]; Value is the captured token. Synthesized
// matches have an empty Text and Start == End.
type Match struct {
	Text  string
	Value string
	Start int
	End   int
}

// spans reports whether the match covers part of the line.
func (m Match) spans() bool {
	return m.End > m.Start
}

// TimestampHeuristic finds a timestamp candidate in a line and parses it.
type TimestampHeuristic struct {
	Name  string
	Find  func(line string) (Match, bool)
	Parse func(value string, loc *time.Location) (time.Time, error)
}

// LevelHeuristic finds a level token in a line.
type LevelHeuristic struct {
	Name string
	Find func(line string) (Match, bool)
}

// Timestamp heuristic names.
const (
	TimestampLeadingComma = "leading-comma-millis"
	TimestampBracketed    = "bracketed-datetime"
	TimestampBare         = "bare-datetime"
	TimestampBracketToken = "bracketed-token"
)

// Level heuristic names.
const (
	LevelDelimited = "delimited-token"
	LevelWord      = "standalone-word"
	LevelKeyword   = "error-keyword"
	LevelDefault   = "default"
	LevelGuess     = "guess"
)

var (
	reLeadingComma = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d{3})`)
	reBracketed    = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})\]`)
	reBare         = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)
	reBracketToken = regexp.MustCompile(`\[([^\]]+)\]`)

	reLevelDelimited = regexp.MustCompile(`(?i)[\[\s](INFO|ERROR|WARN(?:ING)?|DEBUG|FAILURE|FAILED)[\]\s]`)
	reLevelWord      = regexp.MustCompile(`(?i)\b(ERROR|FAILED|FAILURE|WARN(?:ING)?|INFO|DEBUG)\b`)

	reSpaces = regexp.MustCompile(`\s+`)
)

// genericLayouts are tried in order for bracketed tokens. Parsing accepts
// fractional seconds after the seconds field even when a layout omits them.
var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05,000",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02/Jan/2006:15:04:05 -0700",
	time.RFC1123Z,
	time.RFC1123,
	time.ANSIC,
	time.UnixDate,
	"2006-01-02",
}

var errNoLayout = errors.New("no known layout matches")

// DefaultTimestampHeuristics returns the timestamp heuristics in priority
// order. The order decides which substring is the timestamp on lines that
// match several heuristics and must not change.
func DefaultTimestampHeuristics() []TimestampHeuristic {
	return []TimestampHeuristic{
		{
			Name:  TimestampLeadingComma,
			Find:  submatch(reLeadingComma),
			Parse: layoutParser("2006-01-02 15:04:05,000"),
		},
		{
			Name:  TimestampBracketed,
			Find:  submatch(reBracketed),
			Parse: layoutParser("2006-01-02 15:04:05"),
		},
		{
			Name:  TimestampBare,
			Find:  submatch(reBare),
			Parse: layoutParser("2006-01-02 15:04:05"),
		},
		{
			Name:  TimestampBracketToken,
			Find:  submatch(reBracketToken),
			Parse: parseGeneric,
		},
	}
}

// DefaultLevelHeuristics returns the level heuristics in priority order.
func DefaultLevelHeuristics() []LevelHeuristic {
	return []LevelHeuristic{
		{Name: LevelDelimited, Find: trimmed(submatch(reLevelDelimited))},
		{Name: LevelWord, Find: submatch(reLevelWord)},
		{Name: LevelKeyword, Find: findErrorKeyword},
	}
}

func submatch(re *regexp.Regexp) func(string) (Match, bool) {
	return func(line string) (Match, bool) {
		idx := re.FindStringSubmatchIndex(line)
		if idx == nil {
			return Match{}, false
		}
		return Match{
			Text:  line[idx[0]:idx[1]],
			Value: line[idx[2]:idx[3]],
			Start: idx[0],
			End:   idx[1],
		}, true
	}
}

// trimmed drops surrounding whitespace from the match text so that removing
// a delimited token does not join the words around it.
func trimmed(find func(string) (Match, bool)) func(string) (Match, bool) {
	return func(line string) (Match, bool) {
		m, ok := find(line)
		if !ok {
			return m, false
		}
		for m.Start < m.End && isBlank(line[m.Start]) {
			m.Start++
		}
		for m.End > m.Start && isBlank(line[m.End-1]) {
			m.End--
		}
		m.Text = line[m.Start:m.End]
		return m, true
	}
}

// findErrorKeyword synthesizes ERROR for lines mentioning a failure.
func findErrorKeyword(line string) (Match, bool) {
	if hasErrorKeyword(strings.ToLower(line)) {
		return Match{Value: string(LevelError)}, true
	}
	return Match{}, false
}

func hasErrorKeyword(lower string) bool {
	return strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "failure")
}

// guessLevel classifies a line with neither timestamp nor level.
func guessLevel(line string) Level {
	lower := strings.ToLower(line)
	switch {
	case hasErrorKeyword(lower):
		return LevelError
	case strings.Contains(lower, "warn"):
		return LevelWarn
	default:
		return LevelInfo
	}
}

func layoutParser(layout string) func(string, *time.Location) (time.Time, error) {
	return func(value string, loc *time.Location) (time.Time, error) {
		return time.ParseInLocation(layout, collapseSpaces(value), loc)
	}
}

func parseGeneric(value string, loc *time.Location) (time.Time, error) {
	value = collapseSpaces(strings.TrimSpace(value))
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoLayout
}

func collapseSpaces(s string) string {
	return reSpaces.ReplaceAllString(s, " ")
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\v' || c == '\f' || c == '\r' || c == '\n'
}
