package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/detector"
	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/parser"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// diagnoseSampleSize is how many lines of the first log file are profiled.
const diagnoseSampleSize = 20

// probeTimeout bounds the HEAD request made per webhook in verbose mode.
const probeTimeout = 5 * time.Second

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose bool
}

// CheckStatus is the outcome of one diagnostic check.
type CheckStatus string

const (
	StatusOK      CheckStatus = "ok"
	StatusWarning CheckStatus = "warning"
	StatusError   CheckStatus = "error"
)

// label is the tag printed in front of a check.
func (s CheckStatus) label() string {
	switch s {
	case StatusOK:
		return "PASS"
	case StatusWarning:
		return "WARN"
	default:
		return "FAIL"
	}
}

// DiagnosticResult is the outcome of a single check with optional details
// and hints.
type DiagnosticResult struct {
	Check    string
	Status   CheckStatus
	Message  string
	Details  []string
	Suggests []string
}

func check(name string) DiagnosticResult {
	return DiagnosticResult{Check: name}
}

func (r DiagnosticResult) set(status CheckStatus, format string, a ...any) DiagnosticResult {
	r.Status = status
	r.Message = fmt.Sprintf(format, a...)
	return r
}

func (r DiagnosticResult) hint(suggests ...string) DiagnosticResult {
	r.Suggests = append(r.Suggests, suggests...)
	return r
}

func (r DiagnosticResult) detail(details ...string) DiagnosticResult {
	r.Details = append(r.Details, details...)
	return r
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <rules-file>",
		Short: "Diagnose common rules file issues",
		Long: `Diagnose common rules file issues.

This command checks your rules file for common problems:
- File syntax and structure
- Log source file existence and accessibility
- How well timestamps and levels are extracted from the logs
- Rule patterns that will not compile or never match
- Webhook settings

Example:
  logsift diagnose rules.yaml
  logsift diagnose -v rules.yaml  # verbose output, tests webhook connectivity`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runDiagnose(ctx, cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")

	return cmd
}

func runDiagnose(ctx context.Context, w io.Writer, configPath string, opts *DiagnoseOptions) error {
	var results []DiagnosticResult
	report := func() error {
		printDiagnostics(w, results, opts)
		return nil
	}

	exists := checkConfigExists(configPath)
	results = append(results, exists)
	if exists.Status == StatusError {
		return report()
	}

	cfg, parsed := checkConfigParseable(ctx, configPath)
	results = append(results, parsed)
	if cfg == nil {
		return report()
	}

	results = append(results, checkLogSources(cfg)...)
	sample, extraction := checkExtraction(ctx, cfg, opts)
	results = append(results, extraction...)
	results = append(results, checkRules(cfg, sample)...)
	results = append(results, checkWebhooks(cfg, opts)...)

	return report()
}

const starterHint = "Use 'logsift detect <log-file> --write-config rules.yaml' to generate a starter rules file"

func checkConfigExists(path string) DiagnosticResult {
	r := check("Rules File")

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return r.set(StatusError, "Rules file not found: %s", path).
			hint("Check the file path is correct", starterHint)
	case err != nil:
		return r.set(StatusError, "Cannot access rules file: %v", err).hint("Check file permissions")
	case info.IsDir():
		return r.set(StatusError, "Path is a directory, not a file")
	case info.Size() == 0:
		return r.set(StatusError, "Rules file is empty").hint(starterHint)
	}
	return r.set(StatusOK, "Found: %s (%s)", path, humanize.IBytes(uint64(info.Size())))
}

func checkConfigParseable(ctx context.Context, path string) (*config.Config, DiagnosticResult) {
	r := check("Rules Syntax")

	cfg, err := config.Load(ctx, path)
	if err != nil {
		r = r.set(StatusError, "Failed to parse rules file: %v", err)
		var yerr *yaml.TypeError
		if errors.As(err, &yerr) || strings.Contains(err.Error(), "yaml:") {
			r = r.hint("Check YAML syntax and indent with spaces, not tabs")
		}
		return nil, r
	}

	return cfg, r.set(StatusOK, "Rules file parsed successfully").detail(
		fmt.Sprintf("Log sources: %d", len(cfg.LogSources)),
		fmt.Sprintf("Rules: %d", len(cfg.Rules)),
		fmt.Sprintf("Timezone: %s", cfg.Timezone),
	)
}

func checkLogSources(cfg *config.Config) []DiagnosticResult {
	if len(cfg.LogSources) == 0 {
		return []DiagnosticResult{check("Log Sources").
			set(StatusWarning, "No log sources defined").
			hint("Pass log files to 'logsift analyze' or add a log_sources section",
				"Example: log_sources:\n  - /var/log/app/**/*.log")}
	}

	var results []DiagnosticResult
	readable := 0
	for _, source := range cfg.LogSources {
		r, n := checkLogSource(source)
		readable += n
		results = append(results, r)
	}

	if readable == 0 {
		results = append(results, check("Log Files Summary").
			set(StatusError, "No accessible log files found").
			hint("Ensure at least one log file exists and is readable"))
	}
	return results
}

// checkLogSource checks one path or glob and returns how many non-empty
// files it contributes.
func checkLogSource(source string) (DiagnosticResult, int) {
	r := check("Log Source: " + source)

	if parser.IsGlob(source) {
		matches, err := parser.MatchGlob(source)
		switch {
		case err != nil:
			return r.set(StatusError, "%v", err), 0
		case len(matches) == 0:
			return r.set(StatusWarning, "Glob pattern matches no files").
				hint("Check the directory exists and the pattern is right; ** matches nested directories"), 0
		}
		return r.set(StatusOK, "Matches %d file(s)", len(matches)).detail(matches...), len(matches)
	}

	info, err := os.Stat(source)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return r.set(StatusError, "File does not exist").hint("Check if the log file path is correct"), 0
	case err != nil:
		return r.set(StatusError, "Cannot access file: %v", err).hint("Check file permissions"), 0
	case info.IsDir():
		return r.set(StatusError, "Path is a directory, not a file").
			hint("Use a glob pattern to match files in the directory, e.g. " + filepath.Join(source, "*.log")), 0
	case info.Size() == 0:
		return r.set(StatusWarning, "File is empty (0 bytes)"), 0
	}
	return r.set(StatusOK, "File exists (%s)", humanize.IBytes(uint64(info.Size()))), 1
}

// checkExtraction profiles the first non-empty log file and returns the
// sampled lines for the rule checks.
func checkExtraction(ctx context.Context, cfg *config.Config, opts *DiagnoseOptions) ([]string, []DiagnosticResult) {
	logFile := firstReadable(cfg.LogSources)
	if logFile == "" {
		return nil, nil
	}

	r := check("Entry Extraction: " + filepath.Base(logFile))

	sample, err := readSample(ctx, logFile, cfg.MaxLineSize, diagnoseSampleSize)
	if err != nil {
		r = r.set(StatusError, "Cannot read file: %v", err)
		if errors.Is(err, bufio.ErrTooLong) {
			r = r.hint("Raise max_line_size in the rules file")
		}
		return nil, []DiagnosticResult{r}
	}

	d := detector.New(detector.WithExtractor(extract.New(extract.WithLocation(cfg.Location()))))
	det := d.DetectFromLines(sample)
	best := det.BestTimestamp()

	switch {
	case best == nil:
		r = r.set(StatusWarning, "No timestamps found; entries will be stamped with the time of analysis").
			hint("The time range in reports will not reflect when events happened",
				"Use 'logsift detect "+logFile+"' to see how lines are read")
	case det.ParseFailures > 0:
		r = r.set(StatusWarning, "%d/%d sample lines have a bracketed token that is not a timestamp",
			det.ParseFailures, det.SampledLines).
			detail("Sample line:", truncate(det.FailureSamples[0], 80))
	case det.Synthesized*2 > det.SampledLines:
		r = r.set(StatusWarning, "Timestamps found on only %d/%d sample lines", best.Count, det.SampledLines)
	default:
		r = r.set(StatusOK, "Timestamps parsed on %d/%d sample lines (%s)", best.Count, det.SampledLines, best.Name)
		if opts.Verbose {
			r = r.detail("Sample:", truncate(best.SampleLine, 80),
				"Parsed as: "+best.ParsedTime.UTC().Format(time.RFC3339))
		}
	}

	return sample, []DiagnosticResult{r}
}

// firstReadable returns the first non-empty file the sources name.
func firstReadable(sources []string) string {
	files, err := parser.ExpandGlobs(sources)
	if err != nil {
		return ""
	}
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return f
		}
	}
	return ""
}

// readSample returns up to n non-blank lines of a file.
func readSample(ctx context.Context, path string, maxLineSize, n int) ([]string, error) {
	source := parser.NewFileSource(path, maxLineSize)
	defer func() { _ = source.Close() }()

	var lines []string
	for len(lines) < n {
		line, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line.Content) != "" {
			lines = append(lines, line.Content)
		}
	}
	return lines, nil
}

// checkRules compiles each rule the way the matcher does and counts how
// many sample lines it hits.
func checkRules(cfg *config.Config, sample []string) []DiagnosticResult {
	results := make([]DiagnosticResult, 0, len(cfg.Rules))

	for _, rule := range cfg.Rules {
		r := check("Rule: " + rule.Name)

		re, err := rules.Compile(rule.Pattern)
		if err != nil {
			results = append(results, r.
				set(StatusError, "Pattern does not compile; the rule will be excluded").
				detail(err.Error()).
				hint("Lookahead, lookbehind and backreferences are not supported"))
			continue
		}

		hits := 0
		for _, line := range sample {
			if re.MatchString(line) {
				hits++
			}
		}

		switch {
		case rule.Tag == "":
			r = r.set(StatusWarning, "No tag; matches will not be counted as events")
		case len(sample) > 0 && hits == 0:
			r = r.set(StatusWarning, "Matches none of %d sample lines", len(sample))
		default:
			r = r.set(StatusOK, "Tag: %s", rule.Tag)
		}

		if len(sample) > 0 {
			r = r.detail(fmt.Sprintf("Sample hits: %d/%d", hits, len(sample)))
		}
		if rule.Priority != "" {
			r = r.detail(fmt.Sprintf("Priority: %s", rule.Priority))
		}
		results = append(results, r)
	}

	return results
}

func printDiagnostics(w io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("=== logsift Rules Diagnostics ===\n\n")

	counts := map[CheckStatus]int{}
	for _, r := range results {
		counts[r.Status]++

		p("[%s] %s\n", r.Status.label(), r.Check)
		p("    %s\n", r.Message)
		if opts.Verbose || r.Status != StatusOK {
			for _, d := range r.Details {
				p("      - %s\n", d)
			}
		}
		for _, s := range r.Suggests {
			p("      Hint: %s\n", s)
		}
		p("\n")
	}

	p("---\n")
	p("Summary: %d passed, %d warnings, %d errors\n",
		counts[StatusOK], counts[StatusWarning], counts[StatusError])

	switch {
	case counts[StatusError] > 0:
		p("\nFix the errors above before running analysis.\n")
	case counts[StatusWarning] > 0:
		p("\nRules file is usable but has warnings.\n")
	default:
		p("\nRules file looks good!\n")
	}
}

func checkWebhooks(cfg *config.Config, opts *DiagnoseOptions) []DiagnosticResult {
	if len(cfg.Webhooks) == 0 {
		if !opts.Verbose {
			return nil
		}
		return []DiagnosticResult{check("Webhooks").set(StatusOK, "No webhooks configured (optional)")}
	}

	var results []DiagnosticResult
	for _, wh := range cfg.Webhooks {
		name := wh.Name
		if name == "" {
			name = wh.URL
		}
		r := check("Webhook: " + name)

		trigger := wh.Trigger
		if trigger == "" {
			trigger = config.WebhookTriggerOnEvents
		}

		switch err := wh.Check(); {
		case err != nil:
			r = r.set(StatusError, "Invalid webhook").detail(err.Error())
		case wh.MissingTokenEnv != "":
			r = r.set(StatusWarning, "Token refers to unset environment variable %s", wh.MissingTokenEnv).
				hint("Export " + wh.MissingTokenEnv + " before running analysis; requests go out without a token")
		case trigger == config.WebhookTriggerNever:
			r = r.set(StatusWarning, "Trigger is never; this webhook is disabled")
		default:
			r = r.set(StatusOK, "Trigger: %s", trigger)
			if opts.Verbose {
				r = r.detail("URL: "+wh.URL, fmt.Sprintf("Timeout: %s", wh.Timeout))
				if wh.Token != "" {
					r = r.detail("Token: configured")
				}
			}
		}
		results = append(results, r)

		if opts.Verbose && r.Status != StatusError {
			probe := checkWebhookConnectivity(wh)
			probe.Check = "Webhook Connectivity: " + name
			results = append(results, probe)
		}
	}

	return results
}

// checkWebhookConnectivity sends a HEAD request to the webhook URL. Any
// answer below 400 counts as reachable.
func checkWebhookConnectivity(wh config.WebhookConfig) DiagnosticResult {
	var r DiagnosticResult

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, wh.URL, nil)
	if err != nil {
		return r.set(StatusWarning, "Cannot create request: %v", err)
	}
	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return r.set(StatusWarning, "Cannot connect: %v", err).
			hint("Check the webhook URL and network connectivity")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return r.set(StatusOK, "Reachable (status %d)", resp.StatusCode)
	}
	return r.set(StatusWarning, "Reachable but returned status %d", resp.StatusCode).
		hint("Some endpoints only accept POST; deliveries may still succeed",
			"Check authentication if using a token")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
