// Package cli provides the command-line interface for logsift.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ccollicutt/logsift/internal/cli/commands"
	"github.com/ccollicutt/logsift/internal/cli/plugins"
	"github.com/ccollicutt/logsift/pkg/logging"
)

// EnvPrefix prefixes environment variables that override global flags,
// e.g. LOGSIFT_LOG_LEVEL.
const EnvPrefix = "LOGSIFT"

// Execute runs the root command and returns the exit code.
func Execute() int {
	rootCmd := NewRootCommand()

	// Check if the first argument might be a plugin command
	if len(os.Args) > 1 {
		potentialCommand := os.Args[1]
		if len(potentialCommand) > 0 && potentialCommand[0] != '-' {
			if !isBuiltinCommand(rootCmd, potentialCommand) {
				if pluginPath, err := plugins.FindPlugin(potentialCommand); err == nil {
					return plugins.Execute(pluginPath, os.Args[2:])
				}
			}
		}
	}

	if err := rootCmd.Execute(); err != nil {
		if len(os.Args) > 1 {
			potentialCommand := os.Args[1]
			if len(potentialCommand) > 0 && potentialCommand[0] != '-' {
				if !isBuiltinCommand(rootCmd, potentialCommand) {
					_, _ = fmt.Fprintln(os.Stderr, plugins.FormatNotFoundError(potentialCommand))
					return 2
				}
			}
		}
		// SilenceErrors stops cobra printing this itself
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return commands.ExitCode
}

// isBuiltinCommand checks if a command name is a built-in cobra command.
func isBuiltinCommand(rootCmd *cobra.Command, name string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name || cmd.HasAlias(name) {
			return true
		}
	}
	return name == "help" || name == "completion"
}

// NewRootCommand creates the root cobra command. Global settings come from
// flags, LOGSIFT_* environment variables or ~/.logsift.yaml, in that order.
func NewRootCommand() *cobra.Command {
	settings := viper.New()

	rootCmd := &cobra.Command{
		Use:   "logsift",
		Short: "Match log lines against rules and summarize what matched",
		Long: `logsift reads log files line by line, pulls a timestamp, level and message
out of each line with format-agnostic heuristics, and tests the raw line
against a set of regex rules.

Matching lines are folded into a summary: the time range covered, a count
per level and a count per rule tag.

PLUGINS:
  Plugins are standalone binaries named logsift-<command> that are
  discovered and invoked for unknown commands.

  Plugin locations (searched in order):
    1. Same directory as the logsift binary
    2. ~/.logsift/plugins/
    3. Anywhere in PATH`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(
				settings.GetString("log-level"),
				settings.GetString("log-format"),
				cmd.ErrOrStderr(),
			)
		},
	}

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", logging.FormatText, "Log format (text|json)")
	_ = settings.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = settings.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	initSettings(settings)

	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewDiagnoseCommand())
	rootCmd.AddCommand(commands.NewServeCommand(settings))
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}

// initSettings wires environment variables and the optional settings file.
func initSettings(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(".logsift")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	// A missing settings file is normal
	_ = v.ReadInConfig()
}
