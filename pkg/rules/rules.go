// Package rules defines classification rules and the matcher that tests raw
// log lines against them.
package rules

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/logging"
)

// Priority is the severity a rule author assigns to a rule.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is empty or one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rule is a named pattern used to classify raw log lines.
// Rules are immutable once loaded.
type Rule struct {
	// Name identifies the rule in logs and reports.
	Name string `yaml:"name" json:"name"`

	// Pattern is a regular expression tested case-insensitively
	// against the raw line.
	Pattern string `yaml:"pattern" json:"pattern"`

	// Tag is the aggregation key for event counts. Rules without a tag
	// still match but are not counted.
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty"`

	// Priority is informational.
	Priority Priority `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// CompileError reports a rule whose pattern is not a valid regular expression.
type CompileError struct {
	Rule Rule
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %q: invalid pattern %q: %v", e.Rule.Name, e.Rule.Pattern, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Compile compiles a rule pattern the way the matcher uses it.
func Compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// CheckPatterns compiles every rule pattern and returns all failures
// as a single multierror, or nil when all patterns compile.
func CheckPatterns(ruleSet []Rule) error {
	var result *multierror.Error
	for _, rule := range ruleSet {
		if _, err := Compile(rule.Pattern); err != nil {
			result = multierror.Append(result, &CompileError{Rule: rule, Err: err})
		}
	}
	return result.ErrorOrNil()
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Matcher tests raw lines against a compiled rule set.
// A Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	compiled []compiledRule
	excluded []*CompileError
}

// NewMatcher compiles the rule set. Rules whose pattern fails to compile are
// excluded from matching and reported through Excluded; they are logged once
// at warn level.
func NewMatcher(ruleSet []Rule) *Matcher {
	return newMatcher(ruleSet, logging.For("rules"))
}

func newMatcher(ruleSet []Rule, logger zerolog.Logger) *Matcher {
	m := &Matcher{
		compiled: make([]compiledRule, 0, len(ruleSet)),
	}

	for _, rule := range ruleSet {
		re, err := Compile(rule.Pattern)
		if err != nil {
			cerr := &CompileError{Rule: rule, Err: err}
			m.excluded = append(m.excluded, cerr)
			logger.Warn().Err(err).
				Str("rule", rule.Name).
				Str("pattern", rule.Pattern).
				Msg("Excluding rule with invalid pattern")
			continue
		}
		m.compiled = append(m.compiled, compiledRule{rule: rule, re: re})
	}

	return m
}

// Match returns every rule whose pattern matches line, in rule set order.
// The result is nil when nothing matches.
func (m *Matcher) Match(line string) []Rule {
	var matched []Rule
	for _, c := range m.compiled {
		if c.re.MatchString(line) {
			matched = append(matched, c.rule)
		}
	}
	return matched
}

// Excluded returns the rules dropped because their pattern did not compile.
func (m *Matcher) Excluded() []*CompileError {
	return m.excluded
}

// Len returns the number of rules that take part in matching.
func (m *Matcher) Len() int {
	return len(m.compiled)
}
