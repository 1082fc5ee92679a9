// Package observability defines shared logging primitives.
package observability

import (
	"bytes"
	"context"
	"log"
	"log/slog"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger falls back to slog.Default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{log: logger}
}

// NewTextLogger writes slog text records through out, which supplies the
// prefix and timestamp. Debug records are dropped unless debug is set.
func NewTextLogger(out *log.Logger, debug bool) *SlogLogger {
	if out == nil {
		out = log.Default()
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(logWriter{out: out}, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return NewSlogLogger(slog.New(handler))
}

// Debug logs at debug level.
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.write(slog.LevelDebug, msg, fields) }

// Info logs at info level.
func (l *SlogLogger) Info(msg string, fields ...Field) { l.write(slog.LevelInfo, msg, fields) }

// Error logs at error level.
func (l *SlogLogger) Error(msg string, fields ...Field) { l.write(slog.LevelError, msg, fields) }

func (l *SlogLogger) write(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.log.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.log.LogAttrs(ctx, level, msg, attrs...)
}

// logWriter forwards each record to a *log.Logger as one line.
type logWriter struct {
	out *log.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.out.Print(string(bytes.TrimSuffix(p, []byte{'\n'})))
	return len(p), nil
}
