// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context, optional rotating
// file output, and trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// FileConfig configures rotating file output. An empty Path disables it.
type FileConfig struct {
	Path       string `yaml:"path" envconfig:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" envconfig:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" envconfig:"LOG_COMPRESS"`
}

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(service, level, os.Stdout)
}

// InitWriter is Init with an explicit destination.
func InitWriter(service string, level slog.Level, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() and log.Printf also use structured output
	slog.SetDefault(logger)

	return logger
}

// InitFile logs to stdout and, when fc.Path is set, to a size-rotated file.
// The returned closer flushes the file; it is a no-op without a file.
func InitFile(service string, level slog.Level, fc FileConfig) (*slog.Logger, io.Closer) {
	if fc.Path == "" {
		return Init(service, level), nopCloser{}
	}
	lj := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}
	return InitWriter(service, level, io.MultiWriter(os.Stdout, lj)), lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps "debug", "info", "warn", "error" to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a symbol and bar timestamp.
// Format: "{symbol}-{unixNano}", stable across replays of the same bars.
func GenerateTraceID(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, ts.UnixNano())
}

// LogWithTrace returns slog attributes including the trace ID from context.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
