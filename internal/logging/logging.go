// Package logging holds the slog helpers shared by the CLI and the merge pipeline.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the slog handler
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type loggerKey struct{}

// NewStructuredLogger returns a text logger writing to w at level
func NewStructuredLogger(w io.Writer, level slog.Level) *slog.Logger {
	return NewLogger(w, level, FormatText)
}

// NewLogger returns a logger writing to w at level using format
func NewLogger(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts a flag value such as "debug" or "WARN" to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ParseFormat converts a flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q (must be text or json)", s)
	}
}

// LogOperation records a completed step at Info level.
// op is a snake_case event name; details go in attrs.
func LogOperation(logger *slog.Logger, op string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, op, attrs...)
}

// LogDebug records a step at Debug level
func LogDebug(logger *slog.Logger, op string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelDebug, op, attrs...)
}

// LogWarning records a recoverable problem
func LogWarning(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

// LogError records err at Error level
func LogError(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	if err != nil {
		attrs = append([]slog.Attr{slog.String("error", err.Error())}, attrs...)
	}
	logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// SafeCloseWithLogging closes c and logs, rather than returns, any failure
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", name))
	}
}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default()
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
