package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsift/pkg/analyzer"
	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/logging"
	"github.com/ccollicutt/logsift/pkg/output"
	"github.com/ccollicutt/logsift/pkg/parser"
	"github.com/ccollicutt/logsift/pkg/rules"
	"github.com/ccollicutt/logsift/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// AnalyzeOptions holds command-line options for the analyze command.
type AnalyzeOptions struct {
	Output  string
	Verbose bool
	Quiet   bool

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <rules-file> [log-file...]",
		Short: "Match log files against rules",
		Long: `Analyze log files against the rules defined in the rules file.

Log files and globs given as arguments replace the log_sources listed in the
rules file. Each file is analyzed in its own run and gets its own report.

Exit codes:
  0 - Every file had at least one matching entry
  1 - A file had no analyzable log entries
  2 - Configuration or runtime error`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Print each matching entry and run details")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no details")

	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", string(config.WebhookTriggerOnEvents),
		"When to fire webhook (on_events|always|never)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts *AnalyzeOptions) error {
	ExitCode = 0
	rulesFile := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.For("analyze")

	cfg, err := config.Load(ctx, rulesFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	patterns := args[1:]
	if len(patterns) == 0 {
		patterns = cfg.LogSources
	}
	if len(patterns) == 0 {
		return errors.New("no log sources: pass log files or set log_sources in the rules file")
	}

	hooks, err := collectWebhooks(cfg, opts)
	if err != nil {
		return err
	}

	files, err := parser.ExpandGlobs(patterns)
	if err != nil {
		return fmt.Errorf("expanding log sources: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files matched patterns: %v", patterns)
	}

	formatter, err := output.NewFormatter(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	matcher := rules.NewMatcher(cfg.Rules)
	for _, ce := range matcher.Excluded() {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", ce)
	}
	extractor := extract.New(extract.WithLocation(cfg.Location()))
	client := webhook.NewClient()

	failed := 0
	for _, file := range files {
		result, err := analyzeFile(ctx, file, cfg, matcher, extractor, opts, out)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("file", file).Msg("Analysis failed")
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}

		report := output.NewReport(result, rulesFile, file)
		if err := formatter.Format(ctx, report, out); err != nil {
			return fmt.Errorf("formatting output: %w", err)
		}

		if len(hooks) > 0 {
			if err := client.Dispatch(ctx, report, hooks); err != nil {
				// Webhook failures never fail the analysis
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
		}

		if errors.Is(result.Err(), analyzer.ErrNoAnalyzableEntries) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "no analyzable log entries found in %s\n", file)
			ExitCode = 1
		}
	}

	if failed > 0 {
		return fmt.Errorf("analysis failed for %d of %d file(s)", failed, len(files))
	}
	return nil
}

// analyzeFile runs one analysis over a single file.
func analyzeFile(
	ctx context.Context,
	file string,
	cfg *config.Config,
	matcher *rules.Matcher,
	extractor *extract.Extractor,
	opts *AnalyzeOptions,
	out io.Writer,
) (*analyzer.Result, error) {
	source := parser.NewFileSource(file, cfg.MaxLineSize)
	defer func() { _ = source.Close() }()

	analyzerOpts := []analyzer.Option{analyzer.WithExtractor(extractor)}
	if opts.Verbose && !opts.Quiet && opts.Output != "json" {
		analyzerOpts = append(analyzerOpts, analyzer.WithMatchHandler(
			func(entry extract.LogEntry, matched []rules.Rule) error {
				return output.WriteMatch(out, entry, matched)
			},
		))
	}

	return analyzer.New(matcher, analyzerOpts...).Analyze(ctx, source)
}

// collectWebhooks merges config file webhooks with the CLI webhook. The
// CLI webhook gets the same URL and trigger checks as the rules file.
func collectWebhooks(cfg *config.Config, opts *AnalyzeOptions) ([]config.WebhookConfig, error) {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)
	webhooks = append(webhooks, cfg.Webhooks...)

	if opts.WebhookURL == "" {
		return webhooks, nil
	}

	cli := config.WebhookConfig{
		Name:    "cli",
		URL:     opts.WebhookURL,
		Token:   opts.WebhookToken,
		Trigger: config.WebhookTrigger(opts.WebhookTrigger),
		Timeout: config.DefaultWebhookTimeout,
	}
	if err := cli.Check(); err != nil {
		return nil, fmt.Errorf("--webhook-url/--webhook-trigger: %w", err)
	}
	if cli.Trigger == "" {
		cli.Trigger = config.WebhookTriggerOnEvents
	}

	return append(webhooks, cli), nil
}
