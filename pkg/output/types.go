// Package output provides formatting and output generation for analysis results.
package output

import (
	"time"

	"github.com/ccollicutt/logsift/pkg/aggregate"
	"github.com/ccollicutt/logsift/pkg/analyzer"
)

// Report is the complete analysis output for one run.
type Report struct {
	// Summary provides run statistics.
	Summary Summary `json:"summary"`

	// Results is the aggregate snapshot of matched entries.
	Results aggregate.Result `json:"results"`

	// Metadata provides context about the analysis.
	Metadata Metadata `json:"metadata"`
}

// Summary provides run statistics.
type Summary struct {
	// LinesRead is every line read from the source, blank lines included.
	LinesRead int `json:"linesRead"`

	// Matches is the number of lines that matched at least one rule.
	Matches int `json:"matches"`

	// Errors is the number of lines that could not be processed.
	Errors int `json:"errors"`

	// State is the final run state.
	State analyzer.State `json:"state"`
}

// Metadata provides context about the analysis run.
type Metadata struct {
	// RulesFile is the path to the rules file used.
	RulesFile string `json:"rulesFile,omitempty"`

	// Source is the log file that was analyzed.
	Source string `json:"source"`

	// AnalyzedAt is when the analysis was performed.
	AnalyzedAt time.Time `json:"analyzedAt"`

	// Duration is how long the analysis took.
	Duration time.Duration `json:"duration"`

	// ExcludedRules lists rules whose pattern did not compile.
	ExcludedRules []ExcludedRule `json:"excludedRules,omitempty"`
}

// ExcludedRule names a rule left out of matching and why.
type ExcludedRule struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Error   string `json:"error"`
}

// NewReport creates a Report from a run result. Source overrides the name
// reported by the line source when it is not empty.
func NewReport(result *analyzer.Result, rulesFile, source string) *Report {
	if source == "" {
		source = result.Source
	}

	report := &Report{
		Summary: Summary{
			LinesRead: result.Stats.LineCount,
			Matches:   result.Stats.MatchCount,
			Errors:    result.Stats.ErrorCount,
			State:     result.State,
		},
		Results: result.Aggregate,
		Metadata: Metadata{
			RulesFile:  rulesFile,
			Source:     source,
			AnalyzedAt: result.EndTime,
			Duration:   result.Duration(),
		},
	}

	for _, ex := range result.Excluded {
		report.Metadata.ExcludedRules = append(report.Metadata.ExcludedRules, ExcludedRule{
			Name:    ex.Rule.Name,
			Pattern: ex.Rule.Pattern,
			Error:   ex.Err.Error(),
		})
	}

	return report
}

// HasEvents returns true if any line matched a rule.
func (r *Report) HasEvents() bool {
	return r.Summary.Matches > 0
}
