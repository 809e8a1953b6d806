// Package chatlog is the broker's append-only event log. One line per event,
// formatted "[YYYY-MM-DD HH:MM:SS] <event>"; the file is never read back.
package chatlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Log is a mutex-guarded append-only sink.
type Log struct {
	mu sync.Mutex
	w  io.Writer
	f  *os.File
}

// Open appends to the file at path, creating it if needed. Failure to open
// the log is a startup error for the broker.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return &Log{w: f, f: f}, nil
}

// NewWriter wraps an arbitrary writer, for tests.
func NewWriter(w io.Writer) *Log {
	return &Log{w: w}
}

// Event appends one timestamped line.
func (l *Log) Event(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%s] %s\n", time.Now().Format(timeLayout), fmt.Sprintf(format, args...))
}

// Close closes the underlying file, if any.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
