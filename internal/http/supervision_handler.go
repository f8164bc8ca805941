package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/application"
)

var (
	errInvalidSessionID   = errors.New("session id must be a UUID")
	errInvalidRepeatUntil = errors.New("repeat_until must be a date or an RFC 3339 timestamp")
)

type supervisionService interface {
	CreateRecurringSessions(ctx context.Context, params application.CreateSeriesParams) (application.SeriesResult, error)
	UpdateSession(ctx context.Context, params application.UpdateSessionParams) (application.Session, error)
	DeleteSession(ctx context.Context, principal application.Principal, sessionID string) error
	GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
	ListSessions(ctx context.Context, principal application.Principal, params application.ListSessionsParams) ([]application.Session, error)
}

// SupervisionHandler serves supervision series and individual sessions.
type SupervisionHandler struct {
	service   supervisionService
	responder responder
	logger    *slog.Logger
}

func NewSupervisionHandler(service supervisionService, logger *slog.Logger) *SupervisionHandler {
	return &SupervisionHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *SupervisionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SupervisionHandler", operation, attrs...)
}

func (h *SupervisionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createSeriesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create").WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	repeatUntil, ok := parseRepeatUntil(req.RepeatUntil)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRepeatUntil)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.CreateRecurringSessions(r.Context(), req.toParams(principal, repeatUntil))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSeriesResponse(result))
}

func (h *SupervisionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.service.GetSession(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SupervisionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "session_id", sessionID).WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.service.UpdateSession(r.Context(), req.toParams(principal, sessionID))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SupervisionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteSession(r.Context(), principal, sessionID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SupervisionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := buildListParams(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	sessions, err := h.service.ListSessions(r.Context(), principal, params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions)})
}

func buildListParams(values url.Values) (application.ListSessionsParams, error) {
	params := application.ListSessionsParams{
		UserID:   strings.TrimSpace(values.Get("user")),
		SeriesID: strings.TrimSpace(values.Get("series")),
	}

	var ok bool
	if params.From, ok = parseOptionalTime(values.Get("from")); !ok {
		return params, errInvalidQuery
	}
	if params.To, ok = parseOptionalTime(values.Get("to")); !ok {
		return params, errInvalidQuery
	}
	return params, nil
}

type createSeriesRequest struct {
	Title                 string   `json:"title"`
	SupervisorName        string   `json:"supervisor_name"`
	Location              string   `json:"location"`
	Description           string   `json:"description"`
	StartsAt              string   `json:"starts_at"`
	DurationMinutes       int      `json:"duration_minutes"`
	RepeatUntil           string   `json:"repeat_until"`
	StudentIDs            []string `json:"student_ids"`
	ConflictsAcknowledged bool     `json:"conflicts_acknowledged"`
}

func (r createSeriesRequest) toParams(principal application.Principal, repeatUntil *time.Time) application.CreateSeriesParams {
	return application.CreateSeriesParams{
		Principal:             principal,
		Title:                 strings.TrimSpace(r.Title),
		SupervisorName:        strings.TrimSpace(r.SupervisorName),
		Location:              strings.TrimSpace(r.Location),
		Description:           r.Description,
		StartsAt:              parseTime(r.StartsAt),
		DurationMinutes:       r.DurationMinutes,
		RepeatUntil:           repeatUntil,
		StudentIDs:            trimAll(r.StudentIDs),
		ConflictsAcknowledged: r.ConflictsAcknowledged,
	}
}

// parseRepeatUntil accepts either a calendar date or a full timestamp.
func parseRepeatUntil(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if day, err := time.Parse(dateLayout, value); err == nil {
		return &day, true
	}
	if ts := parseTime(value); !ts.IsZero() {
		return &ts, true
	}
	return nil, false
}

type updateSessionRequest struct {
	Title                 string   `json:"title"`
	SupervisorName        string   `json:"supervisor_name"`
	Location              string   `json:"location"`
	Description           string   `json:"description"`
	StartsAt              string   `json:"starts_at"`
	EndsAt                string   `json:"ends_at"`
	StudentIDs            []string `json:"student_ids"`
	ConflictsAcknowledged bool     `json:"conflicts_acknowledged"`
}

func (r updateSessionRequest) toParams(principal application.Principal, sessionID string) application.UpdateSessionParams {
	return application.UpdateSessionParams{
		Principal:             principal,
		SessionID:             sessionID,
		Title:                 strings.TrimSpace(r.Title),
		SupervisorName:        strings.TrimSpace(r.SupervisorName),
		Location:              strings.TrimSpace(r.Location),
		Description:           r.Description,
		StartsAt:              parseTime(r.StartsAt),
		EndsAt:                parseTime(r.EndsAt),
		StudentIDs:            trimAll(r.StudentIDs),
		ConflictsAcknowledged: r.ConflictsAcknowledged,
	}
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type seriesResponse struct {
	SeriesID     string                         `json:"series_id"`
	SessionIDs   []string                       `json:"session_ids"`
	SessionCount int                            `json:"session_count"`
	Conflicts    map[string]sessionConflictsDTO `json:"conflicts,omitempty"`
}

type sessionDTO struct {
	ID             string   `json:"id"`
	SeriesID       string   `json:"series_id"`
	Title          string   `json:"title"`
	SupervisorName string   `json:"supervisor_name"`
	Location       string   `json:"location"`
	Description    string   `json:"description,omitempty"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	StudentIDs     []string `json:"student_ids"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func toSessionDTO(session application.Session) sessionDTO {
	studentIDs := append([]string{}, session.StudentIDs...)
	return sessionDTO{
		ID:             session.ID,
		SeriesID:       session.SeriesID,
		Title:          session.Title,
		SupervisorName: session.SupervisorName,
		Location:       session.Location,
		Description:    session.Description,
		Start:          formatTime(session.Start),
		End:            formatTime(session.End),
		StudentIDs:     studentIDs,
		CreatedAt:      formatTime(session.CreatedAt),
		UpdatedAt:      formatTime(session.UpdatedAt),
	}
}

func toSessionDTOs(sessions []application.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionDTO(session))
	}
	return out
}

func toSeriesResponse(result application.SeriesResult) seriesResponse {
	resp := seriesResponse{
		SeriesID:     result.SeriesID,
		SessionIDs:   append([]string{}, result.SessionIDs...),
		SessionCount: result.SessionCount,
	}
	if len(result.Conflicts) > 0 {
		resp.Conflicts = make(map[string]sessionConflictsDTO, len(result.Conflicts))
		for sessionID, conflicts := range result.Conflicts {
			resp.Conflicts[sessionID] = toSessionConflictsDTO(conflicts)
		}
	}
	return resp
}
