package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsift/pkg/detector"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	ShowAll     bool
	WriteConfig string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>",
		Short: "Show how logsift reads the entries of a log file",
		Long: `Sample a log file and report which timestamp and level heuristics fire
on its lines.

Use it before writing rules to check that timestamps are parsed rather than
synthesized from the current time, and that levels are picked up.

Optionally writes a starter rules file with --write-config.

Example:
  logsift detect /var/log/myapp.log
  logsift detect --sample 500 /var/log/large.log
  logsift detect -w rules.yaml /var/log/app.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", 100, "Number of non-blank lines to sample")
	cmd.Flags().BoolVar(&opts.ShowAll, "all", false, "Show every heuristic that fired, not just the best timestamp")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter rules file (will not overwrite)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	logFile := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s", logFile)
	}

	d := detector.New(detector.WithSampleSize(opts.SampleSize))
	result, err := d.DetectFromFile(ctx, logFile)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.WriteConfig != "" {
		if err := writeStarterConfig(logFile, opts.WriteConfig); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote starter rules to: %s\n", opts.WriteConfig)
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(out, result, logFile, opts)
	case "text", "":
		return outputDetectText(out, result, logFile, opts)
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}
}

func outputDetectText(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("=== Entry Extraction Profile ===\n\n")
	p("File: %s\n", logFile)
	p("Lines sampled: %s", humanize.Comma(int64(result.SampledLines)))
	if result.BlankLines > 0 {
		p(" (%s blank skipped)", humanize.Comma(int64(result.BlankLines)))
	}
	p("\n\n")

	if result.SampledLines == 0 {
		p("No non-blank lines found.\n")
		return nil
	}

	if best := result.BestTimestamp(); best != nil {
		p("Timestamp heuristic: %s\n", best.Name)
		p("Confidence: %.1f%% (%d/%d lines)\n", best.Confidence*100, best.Count, result.SampledLines)
		p("Sample line:\n  %s\n", best.SampleLine)
		p("Parsed as: %s\n\n", best.ParsedTime.UTC().Format(time.RFC3339))
	} else {
		p("No parseable timestamps detected.\n\n")
	}

	if result.Synthesized > 0 {
		p("Note: %d line(s) have no timestamp and will be stamped with the time of analysis.\n", result.Synthesized)
	}
	if result.ParseFailures > 0 {
		p("Warning: %d line(s) carry a bracketed token that is not a known timestamp:\n", result.ParseFailures)
		for _, s := range result.FailureSamples {
			p("  %s\n", s)
		}
	}
	if result.Synthesized > 0 || result.ParseFailures > 0 {
		p("\n")
	}

	if opts.ShowAll && len(result.Timestamps) > 1 {
		p("--- Other timestamp heuristics ---\n")
		for i, m := range result.Timestamps[1:] {
			p("%d. %s (%.1f%%)\n", i+2, m.Name, m.Confidence*100)
		}
		p("\n")
	}

	p("--- Level heuristics ---\n")
	levels := result.Levels
	if !opts.ShowAll && len(levels) > 3 {
		levels = levels[:3]
	}
	for _, m := range levels {
		p("  %-16s %5.1f%%  e.g. %s\n", m.Name, m.Confidence*100, m.SampleLine)
	}

	return nil
}

// JSONHeuristic represents a heuristic in JSON output.
type JSONHeuristic struct {
	Name       string     `json:"name"`
	Count      int        `json:"count"`
	Confidence float64    `json:"confidence"`
	SampleLine string     `json:"sample_line"`
	ParsedTime *time.Time `json:"parsed_time,omitempty"`
}

// JSONOutput represents the full JSON output.
type JSONOutput struct {
	File           string          `json:"file"`
	SampledLines   int             `json:"sampled_lines"`
	BlankLines     int             `json:"blank_lines"`
	Synthesized    int             `json:"synthesized"`
	ParseFailures  int             `json:"parse_failures"`
	FailureSamples []string        `json:"failure_samples,omitempty"`
	Timestamps     []JSONHeuristic `json:"timestamps"`
	Levels         []JSONHeuristic `json:"levels"`
}

func outputDetectJSON(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	output := JSONOutput{
		File:           logFile,
		SampledLines:   result.SampledLines,
		BlankLines:     result.BlankLines,
		Synthesized:    result.Synthesized,
		ParseFailures:  result.ParseFailures,
		FailureSamples: result.FailureSamples,
		Timestamps:     make([]JSONHeuristic, 0),
		Levels:         make([]JSONHeuristic, 0),
	}

	timestamps := result.Timestamps
	if !opts.ShowAll && len(timestamps) > 1 {
		timestamps = timestamps[:1]
	}
	for _, m := range timestamps {
		ts := m.ParsedTime.UTC()
		output.Timestamps = append(output.Timestamps, JSONHeuristic{
			Name:       m.Name,
			Count:      m.Count,
			Confidence: m.Confidence,
			SampleLine: m.SampleLine,
			ParsedTime: &ts,
		})
	}
	for _, m := range result.Levels {
		output.Levels = append(output.Levels, JSONHeuristic{
			Name:       m.Name,
			Count:      m.Count,
			Confidence: m.Confidence,
			SampleLine: m.SampleLine,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// writeStarterConfig writes a starter rules file for logFile.
func writeStarterConfig(logFile, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	// #nosec G306 - rules file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, []byte(generateStarterConfig(logFile)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateStarterConfig creates a rules file template.
func generateStarterConfig(logFile string) string {
	absLogFile := logFile
	if abs, err := filepath.Abs(logFile); err == nil {
		absLogFile = abs
	}

	return fmt.Sprintf(`# logsift rules
# Generated by: logsift detect

log_sources:
  - %s
  # Add more log files or use globs:
  # - /var/log/myapp/*.log

# Timezone for timestamps that carry no offset.
timezone: UTC

rules:
  # Patterns are case-insensitive regular expressions tested against the
  # raw line. Lines matching no rule are not counted.
  - name: Errors
    pattern: 'error|failed|failure'
    tag: error
    priority: high

  - name: Warnings
    pattern: '\bwarn(ing)?\b'
    tag: warning
    priority: medium

  # - name: Timeouts
  #   pattern: 'timed? ?out'
  #   tag: timeout
  #   priority: low
`, absLogFile)
}
