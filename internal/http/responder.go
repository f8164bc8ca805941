package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/supervision-scheduler/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errInvalidID      = errors.New("path identifier is not a valid UUID")
	errInvalidQuery   = errors.New("query parameters are invalid")
	errMissingToken   = errors.New("a bearer token is required")
	errInvalidToken   = errors.New("the bearer token is invalid or expired")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: statusCode(status), Message: message})
}

// handleServiceError maps application errors onto HTTP statuses.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "FORBIDDEN", Message: "You are not allowed to perform this action."})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "The requested resource was not found."})
	case errors.Is(err, application.ErrAlreadyProcessed):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "SWAP_ALREADY_PROCESSED", Message: "This swap request has already been processed."})
	case errors.Is(err, application.ErrDuplicateRequest):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "SWAP_DUPLICATE", Message: "An identical swap request is already pending."})
	case errors.Is(err, application.ErrNoMatchingSeriesSession):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "SWAP_NO_SERIES_SESSION", Message: "You have no session in this series to swap."})
	case errors.Is(err, application.ErrEnrollmentChanged):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "SWAP_ENROLLMENT_CHANGED", Message: "Enrollments changed since the request was made."})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				ErrorCode: "VALIDATION_FAILED",
				Message:   "The request contains invalid fields.",
				Errors:    vErr.FieldErrors,
			})
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: "An internal error occurred."})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_FAILED"
	default:
		return "INTERNAL"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
