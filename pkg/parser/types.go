// Package parser provides the line sources that feed an analysis run.
package parser

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("line source closed")

// LogLine is one decoded line before extraction.
type LogLine struct {
	// Content is the line text without the trailing newline.
	Content string

	// Source names where the line came from (usually a file path).
	Source string

	// LineNum is the 1-based line number in the source.
	LineNum int
}

// LineSource is an ordered, one-pass iterator over lines.
// Implementations must be safe for sequential access (not concurrent).
type LineSource interface {
	// Next returns the next line, blank lines included.
	// Returns io.EOF when no more lines are available; any other error
	// means the source failed.
	Next(ctx context.Context) (*LogLine, error)

	// Close releases any resources held by the source. Next returns
	// ErrSourceClosed afterwards.
	Close() error
}
