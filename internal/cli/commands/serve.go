package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/server"
)

// DefaultListenAddr is where serve listens unless --listen or
// LOGSIFT_LISTEN says otherwise.
const DefaultListenAddr = ":8080"

// ServeOptions holds command-line options for the serve command.
type ServeOptions struct {
	UploadDir     string
	MaxUploadSize int64
}

// NewServeCommand creates the serve command. The listen address is read
// through settings so it can also come from the environment.
func NewServeCommand(settings *viper.Viper) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve <rules-file>",
		Short: "Serve the analysis HTTP API",
		Long: `Start an HTTP server that analyzes uploaded log files.

Endpoints:
  POST /api/analyze  multipart upload in field "logFile" (.log or .txt)
  GET  /healthz      liveness and loaded rule counts

The rules file is loaded and compiled once at startup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, settings.GetString("listen"), opts)
		},
	}

	cmd.Flags().String("listen", DefaultListenAddr, "Address to listen on")
	cmd.Flags().StringVar(&opts.UploadDir, "upload-dir", "", "Directory for uploads while they are analyzed (default: system temp)")
	cmd.Flags().Int64Var(&opts.MaxUploadSize, "max-upload-size", server.DefaultMaxUploadSize, "Largest accepted upload in bytes")
	_ = settings.BindPFlag("listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, args []string, addr string, opts *ServeOptions) error {
	rulesFile := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx, rulesFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	serverOpts := []server.Option{server.WithMaxUploadSize(opts.MaxUploadSize)}
	if opts.UploadDir != "" {
		if err := os.MkdirAll(opts.UploadDir, 0o750); err != nil {
			return fmt.Errorf("creating upload dir: %w", err)
		}
		serverOpts = append(serverOpts, server.WithUploadDir(opts.UploadDir))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "logsift listening on %s\n", addr)
	return server.New(cfg, rulesFile, serverOpts...).Run(ctx, addr)
}
