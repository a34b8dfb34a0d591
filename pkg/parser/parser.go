package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultMaxLineSize is the longest line a source accepts.
const DefaultMaxLineSize = 1024 * 1024

const (
	initialBufferSize = 64 * 1024
	utf8BOM           = "\ufeff"
)

// ReaderSource implements LineSource over an io.Reader.
type ReaderSource struct {
	name        string
	reader      io.Reader
	maxLineSize int

	scanner *bufio.Scanner
	lineNum int
	closed  bool
}

// NewReaderSource creates a LineSource reading lines from r. The name is
// reported as LogLine.Source. A maxLineSize of zero uses DefaultMaxLineSize.
func NewReaderSource(name string, r io.Reader, maxLineSize int) *ReaderSource {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return &ReaderSource{
		name:        name,
		reader:      r,
		maxLineSize: maxLineSize,
	}
}

// Next returns the next line. CRLF endings and a leading UTF-8 byte
// order mark are removed.
func (s *ReaderSource) Next(ctx context.Context) (*LogLine, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if s.scanner == nil {
		// The scanner's limit is the larger of max and the initial buffer
		// capacity, so the buffer must not start out bigger than the limit.
		s.scanner = bufio.NewScanner(s.reader)
		s.scanner.Buffer(make([]byte, 0, min(initialBufferSize, s.maxLineSize)), s.maxLineSize)
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.name, err)
		}
		return nil, io.EOF
	}

	s.lineNum++
	content := s.scanner.Text()
	if s.lineNum == 1 {
		content = strings.TrimPrefix(content, utf8BOM)
	}

	return &LogLine{
		Content: content,
		Source:  s.name,
		LineNum: s.lineNum,
	}, nil
}

// Close marks the source closed. If the reader is an io.Closer it is
// closed too.
func (s *ReaderSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FileSource implements LineSource for a single log file. The file is
// opened on the first call to Next.
type FileSource struct {
	path        string
	maxLineSize int

	reader *ReaderSource
	closed bool
}

// NewFileSource creates a LineSource that reads the file at path.
func NewFileSource(path string, maxLineSize int) *FileSource {
	return &FileSource{
		path:        path,
		maxLineSize: maxLineSize,
	}
}

// Path returns the file path.
func (s *FileSource) Path() string {
	return s.path
}

// Next returns the next line of the file.
func (s *FileSource) Next(ctx context.Context) (*LogLine, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}

	if s.reader == nil {
		if err := s.open(); err != nil {
			return nil, err
		}
	}

	return s.reader.Next(ctx)
}

// Close releases the file handle.
func (s *FileSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.reader != nil {
		return s.reader.Close()
	}
	return nil
}

func (s *FileSource) open() error {
	f, err := os.Open(s.path) // #nosec G304 -- user-provided paths are expected
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", s.path, err)
	}

	s.reader = NewReaderSource(s.path, f, s.maxLineSize)
	return nil
}
