package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/application"
)

var errInvalidSwapID = errors.New("swap request id must be a UUID")

type swapService interface {
	DiscoverSwapTargets(ctx context.Context, sessionID, userID string, now time.Time) (application.SwapTargets, error)
	CreateSwapRequest(ctx context.Context, params application.CreateSwapParams) (application.SwapRequest, error)
	AcceptSwapRequest(ctx context.Context, requestID, actingUserID string) (application.SwapExchange, error)
	RejectSwapRequest(ctx context.Context, requestID, actingUserID string) error
	CancelSwapRequest(ctx context.Context, requestID, actingUserID string) error
	ListSwapRequests(ctx context.Context, userID string) ([]application.SwapRequestView, error)
	PendingSwapCount(ctx context.Context, userID string) (int, error)
}

// SwapHandler serves swap discovery and the swap request lifecycle. The acting
// user is always the authenticated principal.
type SwapHandler struct {
	service   swapService
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewSwapHandler(service swapService, now func() time.Time, logger *slog.Logger) *SwapHandler {
	if now == nil {
		now = time.Now
	}
	return &SwapHandler{service: service, now: now, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *SwapHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SwapHandler", operation, attrs...)
}

func (h *SwapHandler) Targets(w http.ResponseWriter, r *http.Request) {
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
	targets, err := h.service.DiscoverSwapTargets(r.Context(), sessionID, principal.UserID, h.now())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, swapTargetsResponse{
		Available:   toSwapCandidateDTOs(targets.Available),
		Unavailable: toSwapCandidateDTOs(targets.Unavailable),
	})
}

func (h *SwapHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createSwapRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create").WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	request, err := h.service.CreateSwapRequest(r.Context(), application.CreateSwapParams{
		SessionID:   strings.TrimSpace(req.SessionID),
		RequesterID: principal.UserID,
		TargetID:    strings.TrimSpace(req.TargetID),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, swapRequestResponse{SwapRequest: toSwapRequestDTO(request)})
}

func (h *SwapHandler) Accept(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	requestID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSwapID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	exchange, err := h.service.AcceptSwapRequest(r.Context(), requestID, principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, swapExchangeDTO{
		RequestID:          exchange.RequestID,
		Status:             string(application.SwapAccepted),
		RequesterSessionID: exchange.RequesterSessionID,
		TargetSessionID:    exchange.TargetSessionID,
		RespondedAt:        formatTime(exchange.RespondedAt),
	})
}

func (h *SwapHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "Reject", func(ctx context.Context, requestID, userID string) error {
		return h.service.RejectSwapRequest(ctx, requestID, userID)
	})
}

func (h *SwapHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "Cancel", func(ctx context.Context, requestID, userID string) error {
		return h.service.CancelSwapRequest(ctx, requestID, userID)
	})
}

func (h *SwapHandler) resolve(w http.ResponseWriter, r *http.Request, operation string, action func(ctx context.Context, requestID, userID string) error) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	requestID, ok := pathUUID(r, "id")
	if !ok {
		h.log(r.Context(), operation).WarnContext(r.Context(), "invalid swap request id", "raw_id", r.PathValue("id"))
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSwapID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := action(r.Context(), requestID, principal.UserID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SwapHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	views, err := h.service.ListSwapRequests(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]swapRequestViewDTO, 0, len(views))
	for _, view := range views {
		out = append(out, swapRequestViewDTO{
			swapRequestDTO: toSwapRequestDTO(view.SwapRequest),
			Session:        toSessionDTO(view.Session),
			Requester:      toUserDTO(view.Requester),
			Target:         toUserDTO(view.Target),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSwapRequestsResponse{SwapRequests: out})
}

func (h *SwapHandler) PendingCount(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	count, err := h.service.PendingSwapCount(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, pendingCountResponse{Pending: count})
}

type createSwapRequest struct {
	SessionID string `json:"session_id"`
	TargetID  string `json:"target_id"`
}

type swapRequestResponse struct {
	SwapRequest swapRequestDTO `json:"swap_request"`
}

type listSwapRequestsResponse struct {
	SwapRequests []swapRequestViewDTO `json:"swap_requests"`
}

type pendingCountResponse struct {
	Pending int `json:"pending"`
}

type swapTargetsResponse struct {
	Available   []swapCandidateDTO `json:"available"`
	Unavailable []swapCandidateDTO `json:"unavailable"`
}

type swapRequestDTO struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id"`
	RequesterID string  `json:"requester_id"`
	TargetID    string  `json:"target_id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

type swapRequestViewDTO struct {
	swapRequestDTO
	Session   sessionDTO `json:"session"`
	Requester userDTO    `json:"requester"`
	Target    userDTO    `json:"target"`
}

type swapCandidateDTO struct {
	User    userDTO    `json:"user"`
	Session sessionDTO `json:"session"`
	Reason  string     `json:"reason,omitempty"`
}

type swapExchangeDTO struct {
	RequestID          string `json:"request_id"`
	Status             string `json:"status"`
	RequesterSessionID string `json:"requester_session_id"`
	TargetSessionID    string `json:"target_session_id"`
	RespondedAt        string `json:"responded_at"`
}

func toSwapRequestDTO(request application.SwapRequest) swapRequestDTO {
	return swapRequestDTO{
		ID:          request.ID,
		SessionID:   request.SessionID,
		RequesterID: request.RequesterID,
		TargetID:    request.TargetID,
		Status:      string(request.Status),
		CreatedAt:   formatTime(request.CreatedAt),
		RespondedAt: formatOptionalTime(request.RespondedAt),
	}
}

func toSwapCandidateDTOs(candidates []application.SwapCandidate) []swapCandidateDTO {
	out := make([]swapCandidateDTO, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, swapCandidateDTO{
			User:    toUserDTO(candidate.User),
			Session: toSessionDTO(candidate.Session),
			Reason:  candidate.Reason,
		})
	}
	return out
}
