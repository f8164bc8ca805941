package http

import (
	"context"
	"log/slog"

	"github.com/example/supervision-scheduler/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// handlerLogger tags the request logger with the handler, the operation and
// the acting user when the bearer middleware has attached one.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	if principal, ok := PrincipalFromContext(ctx); ok {
		attrs = append(attrs, "actor_id", principal.UserID)
	}
	return logging.Component(ctx, fallback, "handler", handlerName, operation, attrs...)
}
