// Package logging provides a small timestamped line logger so protocol
// anomalies and engine lifecycle events can be inspected after the fact.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes timestamped lines to a writer. A nil *Logger discards
// everything, so callers never have to guard their log sites.
type Logger struct {
	mu   sync.Mutex
	w    io.Writer
	file *os.File
}

// New returns a logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Stderr returns a logger writing to standard error.
func Stderr() *Logger {
	return New(os.Stderr)
}

// NewFile creates (or appends to) a log file at path.
func NewFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{w: f, file: f}, nil
}

// Printf writes a single timestamped line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.w == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%s] %s\n", time.Now().Format(time.RFC3339), line)
}

// Close releases the file handle if the logger owns one.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
