//go:generate go run go.uber.org/mock/mockgen -source=notifier.go -destination=../mocks/mock_notifier.go -package=mocks

// Package notify holds the sinks that surface user-facing errors.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/gookit/color"
)

// Notifier displays an error string to the user.
type Notifier interface {
	Error(message string)
}

// Log writes notifications to a slog logger. Useful for headless runs.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) Error(message string) {
	l.logger.Warn("User notification", "message", message)
}

// Terminal prints notifications in red, like a toast in a terminal.
// It counts what it printed so a CLI can derive its exit code.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	count int
}

// NewTerminal creates a notifier writing to w (stderr when nil).
func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	return &Terminal{out: w}
}

func (t *Terminal) Error(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	fmt.Fprintln(t.out, color.Red.Sprintf("✗ %s", message))
}

// Count returns how many notifications were shown.
func (t *Terminal) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) Error(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}
