package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/supervision-scheduler/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Component(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps sentinel and structured errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrNoMatchingSeriesSession):
		return "no_matching_series_session"
	case errors.Is(err, ErrEnrollmentChanged):
		return "enrollment_changed"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var pErr *PersistenceError
	if errors.As(err, &pErr) {
		return "persistence"
	}
	return "unexpected"
}

func logOutcome(ctx context.Context, logger *slog.Logger, err error, msg string, attrs ...any) {
	if err == nil {
		logger.InfoContext(ctx, msg, attrs...)
		return
	}
	attrs = append(attrs, "error_kind", ErrorKind(err), "error", err)
	switch ErrorKind(err) {
	case "persistence", "unexpected":
		logger.ErrorContext(ctx, msg+" failed", attrs...)
	default:
		logger.WarnContext(ctx, msg+" rejected", attrs...)
	}
}
