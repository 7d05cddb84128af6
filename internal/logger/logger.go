// Package logger implements the kernel's leveled logging, following the
// debug/trace/info/error discipline the syscall dispatcher depends on (see
// internal/syscall/dispatch.go). Output rotates through lumberjack the same
// way gcsfuse's internal/logger does, so long-running kernel sessions don't
// grow an unbounded log file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders the severities from the loudest (Trace) to the quietest
// (Error). Numerically smaller is louder, mirroring the convention that
// Trace is "more verbose than Debug".
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level. It defaults to
// LevelInfo for unrecognized input.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a minimal leveled logger. The zero value is not usable; build
// one with New.
type Logger struct {
	mu     sync.Mutex
	level  Level
	out    *log.Logger
	closer io.Closer
}

var (
	defaultMu     sync.Mutex
	defaultLogger = New(LevelInfo, os.Stderr, nil)
)

// New builds a Logger writing to w at the given minimum level. If rotate is
// non-nil, w is ignored and output instead goes through a rotating
// lumberjack writer configured by rotate.
func New(level Level, w io.Writer, rotate *lumberjack.Logger) *Logger {
	var closer io.Closer
	if rotate != nil {
		w = rotate
		closer = rotate
	}
	return &Logger{
		level:  level,
		out:    log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		closer: closer,
	}
}

// NewRotating is the common case: logs to path, rotated by lumberjack at
// maxSizeMB, keeping maxBackups old files.
func NewRotating(level Level, path string, maxSizeMB, maxBackups int) *Logger {
	return New(level, nil, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	})
}

// SetDefault replaces the process-wide default logger used by the
// package-level Trace/Debug/Info/Warn/Error helpers.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Close releases the underlying rotating writer, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.out.Printf("[%s] %s", level, msg)
}

func (l *Logger) Trace(format string, args ...any) { l.log(LevelTrace, format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// Trace logs at the default logger's Trace level.
func Trace(format string, args ...any) { defaultLogger.Trace(format, args...) }

// Debug logs at the default logger's Debug level.
func Debug(format string, args ...any) { defaultLogger.Debug(format, args...) }

// Info logs at the default logger's Info level.
func Info(format string, args ...any) { defaultLogger.Info(format, args...) }

// Warn logs at the default logger's Warn level.
func Warn(format string, args ...any) { defaultLogger.Warn(format, args...) }

// Error logs at the default logger's Error level.
func Error(format string, args ...any) { defaultLogger.Error(format, args...) }
