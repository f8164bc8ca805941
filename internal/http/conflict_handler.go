package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/application"
)

type conflictService interface {
	CheckAvailabilityConflicts(ctx context.Context, start, end time.Time, studentIDs []string) (map[string][]application.AvailabilityConflict, error)
	CheckEnrollmentConflicts(ctx context.Context, start, end time.Time, studentIDs []string, excludeSessionID string) (map[string][]application.ConflictingSession, error)
}

// ConflictHandler exposes the advisory conflict checks used by scheduling forms.
type ConflictHandler struct {
	service   conflictService
	responder responder
	logger    *slog.Logger
}

func NewConflictHandler(service conflictService, logger *slog.Logger) *ConflictHandler {
	return &ConflictHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *ConflictHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ConflictHandler", operation, attrs...)
}

func (h *ConflictHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req conflictCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Availability").WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	conflicts, err := h.service.CheckAvailabilityConflicts(r.Context(), parseTime(req.StartsAt), parseTime(req.EndsAt), trimAll(req.StudentIDs))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityConflictsResponse{Conflicts: toAvailabilityConflictDTOs(conflicts)})
}

func (h *ConflictHandler) Enrollments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req conflictCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Enrollments").WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	conflicts, err := h.service.CheckEnrollmentConflicts(r.Context(), parseTime(req.StartsAt), parseTime(req.EndsAt), trimAll(req.StudentIDs), strings.TrimSpace(req.ExcludeSessionID))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, enrollmentConflictsResponse{Conflicts: toConflictingSessionDTOs(conflicts)})
}

type conflictCheckRequest struct {
	StartsAt         string   `json:"starts_at"`
	EndsAt           string   `json:"ends_at"`
	StudentIDs       []string `json:"student_ids"`
	ExcludeSessionID string   `json:"exclude_session_id"`
}

type availabilityConflictsResponse struct {
	Conflicts map[string][]availabilityConflictDTO `json:"conflicts"`
}

type enrollmentConflictsResponse struct {
	Conflicts map[string][]conflictingSessionDTO `json:"conflicts"`
}

type sessionConflictsDTO struct {
	Availability map[string][]availabilityConflictDTO `json:"availability,omitempty"`
	Enrollments  map[string][]conflictingSessionDTO   `json:"enrollments,omitempty"`
}

type availabilityConflictDTO struct {
	BlockID string `json:"block_id"`
	Reason  string `json:"reason"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type conflictingSessionDTO struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func toSessionConflictsDTO(conflicts application.SessionConflicts) sessionConflictsDTO {
	dto := sessionConflictsDTO{}
	if len(conflicts.Availability) > 0 {
		dto.Availability = toAvailabilityConflictDTOs(conflicts.Availability)
	}
	if len(conflicts.Enrollments) > 0 {
		dto.Enrollments = toConflictingSessionDTOs(conflicts.Enrollments)
	}
	return dto
}

func toAvailabilityConflictDTOs(conflicts map[string][]application.AvailabilityConflict) map[string][]availabilityConflictDTO {
	out := make(map[string][]availabilityConflictDTO, len(conflicts))
	for studentID, items := range conflicts {
		dtos := make([]availabilityConflictDTO, 0, len(items))
		for _, item := range items {
			dtos = append(dtos, availabilityConflictDTO{
				BlockID: item.BlockID,
				Reason:  item.Reason,
				Start:   formatTime(item.Start),
				End:     formatTime(item.End),
			})
		}
		out[studentID] = dtos
	}
	return out
}

func toConflictingSessionDTOs(conflicts map[string][]application.ConflictingSession) map[string][]conflictingSessionDTO {
	out := make(map[string][]conflictingSessionDTO, len(conflicts))
	for studentID, items := range conflicts {
		dtos := make([]conflictingSessionDTO, 0, len(items))
		for _, item := range items {
			dtos = append(dtos, conflictingSessionDTO{
				SessionID: item.SessionID,
				Title:     item.Title,
				Start:     formatTime(item.Start),
				End:       formatTime(item.End),
			})
		}
		out[studentID] = dtos
	}
	return out
}
