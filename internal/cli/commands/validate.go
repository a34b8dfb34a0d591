package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/parser"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Validate a rules file",
		Long: `Validate a logsift rules file without running analysis.

Checks:
  - YAML syntax
  - Required rule fields and priorities
  - Timezone and webhook settings
  - Regex pattern validity (invalid rules are reported, not fatal)
  - Log source file existence (warning only)`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	rulesFile := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "Validating %s...\n", rulesFile)

	cfg, err := config.Load(ctx, rulesFile)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration valid!\n")
	_, _ = fmt.Fprintf(out, "  Log sources: %d pattern(s)\n", len(cfg.LogSources))
	_, _ = fmt.Fprintf(out, "  Rules:       %d\n", len(cfg.Rules))
	_, _ = fmt.Fprintf(out, "  Timezone:    %s\n", cfg.Timezone)
	_, _ = fmt.Fprintf(out, "  Max line:    %s\n", humanize.IBytes(uint64(cfg.MaxLineSize)))
	if len(cfg.Webhooks) > 0 {
		_, _ = fmt.Fprintf(out, "  Webhooks:    %d\n", len(cfg.Webhooks))
	}

	_, _ = fmt.Fprintf(out, "\nRules:\n")
	for i, rule := range cfg.Rules {
		priority := string(rule.Priority)
		if priority == "" {
			priority = "-"
		}
		_, _ = fmt.Fprintf(out, "  %d. [%s] %s", i+1, priority, rule.Name)
		if rule.Tag != "" {
			_, _ = fmt.Fprintf(out, " (tag: %s)", rule.Tag)
		}
		_, _ = fmt.Fprintln(out)
	}

	// Invalid patterns only exclude the rule from matching
	if err := rules.CheckPatterns(cfg.Rules); err != nil {
		_, _ = fmt.Fprintf(out, "\nWarning: some rules will be excluded from matching:\n")
		for _, e := range compileErrors(err) {
			_, _ = fmt.Fprintf(out, "  - %s: %v\n", e.Rule.Name, e.Err)
		}
	}

	if len(cfg.LogSources) == 0 {
		_, _ = fmt.Fprintf(out, "\nNo log sources configured; pass log files to analyze.\n")
		return nil
	}

	files, err := parser.ExpandGlobs(cfg.LogSources)
	if err != nil {
		_, _ = fmt.Fprintf(out, "\nWarning: Error expanding log source patterns: %v\n", err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "\nLog files:\n")
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			_, _ = fmt.Fprintf(out, "  - %s (Warning: not found)\n", f)
			continue
		}
		_, _ = fmt.Fprintf(out, "  - %s (%s)\n", f, humanize.IBytes(uint64(info.Size())))
	}

	return nil
}

// compileErrors extracts the per-rule failures from CheckPatterns.
func compileErrors(err error) []*rules.CompileError {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return nil
	}
	out := make([]*rules.CompileError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var ce *rules.CompileError
		if errors.As(e, &ce) {
			out = append(out, ce)
		}
	}
	return out
}
