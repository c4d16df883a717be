// Package logger implements an asynchronous, append-only file logger.
//
// Producers hand messages to a bounded queue and return immediately; a single writer
// goroutine owns every record after hand-off. For each record the writer opens the
// file of the current day, appends one line and closes the file again:
//
//	producer-1 ──Log──┐
//	producer-2 ──Log──┼──→ queue ──→ writer ──→ <dir>/2026-10-14-log.txt
//	producer-3 ──Log──┘                         "9:5:7 => [info]message"
//
// A Logger is an explicit handle: Start launches its writer and Stop drains the queue
// and waits for the writer to exit.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity tag written in front of each line.
type Level int32

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// ParseLevel maps "info" or "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "info", "INFO":
		return LevelInfo, nil
	case "error", "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

const DefaultQueueSize = 1024

var ErrStopped = errors.New("logger: stopped")

// OpenError reports that the log file of the day could not be opened.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("logger file: %s open error: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// record is one queued message. Records logged through Log take the logger's
// level at format time; Info and Error pin their own.
type record struct {
	msg      string
	level    Level
	hasLevel bool
}

type Logger struct {
	dir       string
	queueSize int
	clock     func() time.Time
	fallback  io.Writer
	onError   func(error)
	fatal     bool
	exit      func(code int)

	level atomic.Int32
	queue chan record

	mu     sync.RWMutex // Held for reading while sending, for writing while closing the queue
	closed bool
	done   chan struct{} // Closed when the writer goroutine exits
}

// Option configures a Logger before its writer starts.
type Option func(*Logger)

// WithDir sets the directory that holds the daily files. Default: working directory.
func WithDir(dir string) Option {
	return func(l *Logger) { l.dir = dir }
}

// WithQueueSize bounds the hand-off queue. 0 makes every Log wait for the writer.
func WithQueueSize(n int) Option {
	return func(l *Logger) { l.queueSize = n }
}

// WithLevel sets the initial level.
func WithLevel(level Level) Option {
	return func(l *Logger) { l.level.Store(int32(level)) }
}

// WithClock replaces time.Now, which names the file and stamps each line.
func WithClock(clock func() time.Time) Option {
	return func(l *Logger) { l.clock = clock }
}

// WithFallback sets where lines go when the day's file cannot be opened. Default: os.Stderr.
func WithFallback(w io.Writer) Option {
	return func(l *Logger) { l.fallback = w }
}

// WithErrorHandler receives every open or write failure of the writer goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Logger) { l.onError = fn }
}

// WithFatalOnOpenError terminates the process when the day's file cannot be opened,
// instead of falling back.
func WithFatalOnOpenError() Option {
	return func(l *Logger) { l.fatal = true }
}

// Start creates a Logger and launches its writer goroutine.
func Start(opts ...Option) *Logger {
	l := &Logger{
		dir:       ".",
		queueSize: DefaultQueueSize,
		clock:     time.Now,
		fallback:  os.Stderr,
		onError:   func(error) {},
		exit:      os.Exit,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.queueSize < 0 {
		l.queueSize = 0
	}
	l.queue = make(chan record, l.queueSize)

	go l.writeLoop()
	return l
}

// SetLevel changes the level applied to records written through Log.
// Records already queued pick up the new level if they have not been formatted yet.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Log queues msg for the writer at the current level.
// It blocks only while the queue is full, and returns ErrStopped after Stop.
func (l *Logger) Log(msg string) error {
	return l.push(record{msg: msg})
}

// Info queues msg tagged [info] regardless of the current level.
func (l *Logger) Info(msg string) error {
	return l.push(record{msg: msg, level: LevelInfo, hasLevel: true})
}

// Error queues msg tagged [error] regardless of the current level.
func (l *Logger) Error(msg string) error {
	return l.push(record{msg: msg, level: LevelError, hasLevel: true})
}

func (l *Logger) Infof(format string, args ...any) error {
	return l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) error {
	return l.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) push(rec record) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrStopped
	}
	l.queue <- rec
	return nil
}

// Stop refuses new records, lets the writer drain everything already queued and
// waits for it to exit. If ctx ends first, Stop returns ctx.Err() and the writer
// keeps draining in the background. Calling Stop again is a no-op.
func (l *Logger) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FileName returns the name of the log file for day t, e.g. "2026-10-14-log.txt".
func FileName(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d-log.txt", t.Year(), int(t.Month()), t.Day())
}

// formatLine renders "H:M:S => [level]msg\n" without zero padding.
func formatLine(t time.Time, level Level, msg string) string {
	return fmt.Sprintf("%d:%d:%d => [%s]%s\n", t.Hour(), t.Minute(), t.Second(), level, msg)
}

// writeLoop is the only reader of the queue, so lines never interleave.
func (l *Logger) writeLoop() {
	defer close(l.done)
	for rec := range l.queue {
		l.write(rec)
	}
}

func (l *Logger) write(rec record) {
	// Date and time are taken when the record is dequeued, not when it was logged
	now := l.clock()
	level := rec.level
	if !rec.hasLevel {
		level = l.Level()
	}
	line := formatLine(now, level, rec.msg)
	path := filepath.Join(l.dir, FileName(now))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		openErr := &OpenError{Path: path, Err: err}
		if l.fatal {
			fmt.Fprintf(l.fallback, "logger file: %s open error!\n", path)
			l.exit(1)
			return
		}
		l.onError(openErr)
		io.WriteString(l.fallback, line)
		return
	}

	// One Write per line: O_APPEND keeps each line whole even with other processes appending
	if _, err := io.WriteString(f, line); err != nil {
		l.onError(fmt.Errorf("logger: write %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		l.onError(fmt.Errorf("logger: close %s: %w", path, err))
	}
}
