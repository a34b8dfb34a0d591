// Package server exposes log analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ccollicutt/logsift/pkg/analyzer"
	"github.com/ccollicutt/logsift/pkg/config"
	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/logging"
	"github.com/ccollicutt/logsift/pkg/output"
	"github.com/ccollicutt/logsift/pkg/parser"
	"github.com/ccollicutt/logsift/pkg/rules"
	"github.com/ccollicutt/logsift/pkg/webhook"
)

// DefaultMaxUploadSize is the largest accepted log upload.
const DefaultMaxUploadSize int64 = 50 * 1024 * 1024

// UploadField is the multipart form field carrying the log file.
const UploadField = "logFile"

const shutdownTimeout = 5 * time.Second

// Error messages returned in the "error" field of a failed request.
const (
	msgNoFile       = "No log file uploaded"
	msgBadExtension = "Only .log and .txt files are allowed"
	msgNoEntries    = "No analyzable log entries found in file"
	msgNotFound     = "File not found or could not be accessed"
)

var allowedExtensions = map[string]bool{
	".log": true,
	".txt": true,
}

// Server handles log uploads. The rule set is compiled once and shared by
// every request; each upload gets its own analyzer run.
type Server struct {
	engine    *gin.Engine
	cfg       *config.Config
	rulesFile string
	matcher   *rules.Matcher
	extractor *extract.Extractor
	webhooks  *webhook.Client

	uploadDir     string
	maxUploadSize int64
	logger        zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithUploadDir sets where uploads are stored while they are analyzed.
// The default is the system temp directory.
func WithUploadDir(dir string) Option {
	return func(s *Server) {
		s.uploadDir = dir
	}
}

// WithMaxUploadSize overrides DefaultMaxUploadSize.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadSize = n
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server for a validated configuration.
func New(cfg *config.Config, rulesFile string, opts ...Option) *Server {
	s := &Server{
		cfg:           cfg,
		rulesFile:     rulesFile,
		webhooks:      webhook.NewClient(),
		uploadDir:     os.TempDir(),
		maxUploadSize: DefaultMaxUploadSize,
		logger:        logging.For("server"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.matcher = rules.NewMatcher(cfg.Rules)
	s.extractor = extract.New(
		extract.WithLocation(cfg.Location()),
		extract.WithLogger(s.logger),
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	s.engine = engine

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"rules":          s.matcher.Len(),
			"excluded_rules": len(s.matcher.Excluded()),
		})
	})

	s.engine.POST("/api/analyze", s.handleAnalyze)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Int("rules", s.matcher.Len()).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("Shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleAnalyze(c *gin.Context) {
	// Leave room for multipart framing around the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize+1024*1024)

	header, err := c.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.fail(c, http.StatusBadRequest, s.sizeMessage())
			return
		}
		s.fail(c, http.StatusBadRequest, msgNoFile)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		s.fail(c, http.StatusBadRequest, msgBadExtension)
		return
	}

	if header.Size > s.maxUploadSize {
		s.logger.Warn().
			Str("file", header.Filename).
			Str("size", humanize.IBytes(uint64(header.Size))).
			Msg("Upload too large")
		s.fail(c, http.StatusBadRequest, s.sizeMessage())
		return
	}

	path := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(header, path); err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to process log file: "+err.Error())
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove upload")
		}
	}()

	s.logger.Debug().
		Str("file", header.Filename).
		Str("size", humanize.IBytes(uint64(header.Size))).
		Str("path", path).
		Msg("Upload stored")

	result, err := s.analyze(c.Request.Context(), path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.fail(c, http.StatusBadRequest, msgNotFound)
			return
		}
		s.fail(c, http.StatusInternalServerError, "Failed to process log file: "+err.Error())
		return
	}

	if result.Err() != nil {
		s.fail(c, http.StatusBadRequest, msgNoEntries)
		return
	}

	report := output.NewReport(result, s.rulesFile, header.Filename)
	if len(s.cfg.Webhooks) > 0 {
		// Delivery failures are logged by the client and do not fail the request.
		_ = s.webhooks.Dispatch(c.Request.Context(), report, s.cfg.Webhooks)
	}

	c.JSON(http.StatusOK, result.Aggregate)
}

func (s *Server) analyze(ctx context.Context, path string) (*analyzer.Result, error) {
	source := parser.NewFileSource(path, s.cfg.MaxLineSize)
	defer func() { _ = source.Close() }()

	a := analyzer.New(s.matcher,
		analyzer.WithExtractor(s.extractor),
		analyzer.WithLogger(s.logger),
	)
	return a.Analyze(ctx, source)
}

func (s *Server) sizeMessage() string {
	return fmt.Sprintf("File size must be less than %d MB", s.maxUploadSize/(1024*1024))
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	s.logger.Warn().Int("status", status).Str("error", msg).Msg("Analyze request rejected")
	c.JSON(status, gin.H{"error": msg})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
