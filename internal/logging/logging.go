// Package logging carries request scoped slog loggers through context.Context
// and builds the process logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type loggerKey struct{}

// New returns a JSON logger writing to w at the named level.
// Unknown level names fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// ContextWithLogger returns a derived context that carries logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts a logger previously attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger
}

// With attaches attrs to the context logger, starting from fallback when ctx carries none.
func With(ctx context.Context, fallback *slog.Logger, attrs ...any) context.Context {
	logger := FromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return ContextWithLogger(ctx, logger.With(attrs...))
}

// Component returns the context logger (or fallback) tagged with the component
// kind and name, for example "service"/"SwapService", plus the operation.
func Component(ctx context.Context, fallback *slog.Logger, kind, name, operation string, attrs ...any) *slog.Logger {
	logger := FromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, kind, name)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logger.With(append(pairs, attrs...)...)
}
