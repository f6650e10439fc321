// Package logger provides the structured logger used across kernelguard.
package logger

import (
	"context"
	"io"
	"os"
	"testing"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel is a string-typed log level, kept independent of the charmlog
// enum so callers never need to import charmbracelet/log directly.
type LogLevel string

const (
	DebugLevel    LogLevel = "debug"
	InfoLevel     LogLevel = "info"
	WarnLevel     LogLevel = "warn"
	ErrorLevel    LogLevel = "error"
	DisabledLevel LogLevel = "disabled"
)

// ToCharmlogLevel converts the level to its charmbracelet/log equivalent,
// defaulting unknown values to InfoLevel.
func (l LogLevel) ToCharmlogLevel() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case InfoLevel:
		return charmlog.InfoLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	case DisabledLevel:
		return charmlog.Level(1000)
	default:
		return charmlog.InfoLevel
	}
}

// Config controls logger construction.
type Config struct {
	Level      LogLevel
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string
}

// DefaultConfig is the configuration used when no Config is supplied
// outside of tests.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Output:     os.Stdout,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

func defaultConfig() *Config {
	if IsTestEnvironment() {
		return TestConfig()
	}
	return DefaultConfig()
}

// IsTestEnvironment reports whether the current process is running under
// `go test`, so NewLogger(nil) can default to a quiet, discarded logger
// instead of writing to stdout during test runs.
func IsTestEnvironment() bool {
	return testing.Testing()
}

// Logger is the interface kernel packages log through.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type charmLogger struct {
	l *charmlog.Logger
}

func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = defaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.AddSource,
	}
	l := charmlog.NewWithOptions(out, opts)
	l.SetLevel(cfg.Level.ToCharmlogLevel())
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return &charmLogger{l: l}
}

func (c *charmLogger) Debug(msg string, kv ...any) { c.l.Debug(msg, kv...) }
func (c *charmLogger) Info(msg string, kv ...any)  { c.l.Info(msg, kv...) }
func (c *charmLogger) Warn(msg string, kv ...any)  { c.l.Warn(msg, kv...) }
func (c *charmLogger) Error(msg string, kv ...any) { c.l.Error(msg, kv...) }

func (c *charmLogger) With(kv ...any) Logger {
	return &charmLogger{l: c.l.With(kv...)}
}

type ctxKey struct{}

// LoggerCtxKey is the context key the logger is stored under.
var LoggerCtxKey = ctxKey{}

var defaultLogger = NewLogger(nil)

// ContextWithLogger attaches a logger to ctx.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, l)
}

// FromContext returns the logger stored in ctx, or a process-wide default
// if absent or of the wrong type.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger
	}
	if l, ok := ctx.Value(LoggerCtxKey).(Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}

// TestConfig returns a Config suitable for unit tests: disabled level,
// output discarded.
func TestConfig() *Config {
	return &Config{
		Level:      DisabledLevel,
		Output:     io.Discard,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}
