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

var (
	errInvalidBlockID = errors.New("availability block id must be a UUID")
	errInvalidDate    = errors.New("date must use the YYYY-MM-DD format")
)

type availabilityService interface {
	AddBlock(ctx context.Context, params application.AddBlockParams) (application.AvailabilityBlock, error)
	DeleteBlock(ctx context.Context, principal application.Principal, blockID string) error
	ListUpcoming(ctx context.Context, principal application.Principal) ([]application.AvailabilityBlock, error)
	ListForDate(ctx context.Context, principal application.Principal, date time.Time) ([]application.AvailabilityBlock, error)
}

// AvailabilityHandler serves personal busy slots and organisation-wide blocks.
type AvailabilityHandler struct {
	service   availabilityService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewAvailabilityHandler builds the handler. Calendar dates in queries are
// interpreted in loc.
func NewAvailabilityHandler(service availabilityService, loc *time.Location, logger *slog.Logger) *AvailabilityHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityHandler{service: service, location: loc, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *AvailabilityHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AvailabilityHandler", operation, attrs...)
}

func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var (
		blocks []application.AvailabilityBlock
		err    error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		date, parseErr := time.ParseInLocation(dateLayout, raw, h.location)
		if parseErr != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		blocks, err = h.service.ListForDate(r.Context(), principal, date)
	} else {
		blocks, err = h.service.ListUpcoming(r.Context(), principal)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]blockDTO, 0, len(blocks))
	for _, block := range blocks {
		out = append(out, toBlockDTO(block))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBlocksResponse{Blocks: out})
}

func (h *AvailabilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create").WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	block, err := h.service.AddBlock(r.Context(), application.AddBlockParams{
		Principal: principal,
		Kind:      application.BlockKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		StartsAt:  parseTime(req.StartsAt),
		EndsAt:    parseTime(req.EndsAt),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, blockResponse{Block: toBlockDTO(block)})
}

func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	blockID, ok := pathUUID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBlockID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteBlock(r.Context(), principal, blockID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type createBlockRequest struct {
	Kind     string `json:"kind"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type blockResponse struct {
	Block blockDTO `json:"block"`
}

type listBlocksResponse struct {
	Blocks []blockDTO `json:"blocks"`
}

type blockDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	UserID    string `json:"user_id,omitempty"`
	Start     string `json:"start"`
	End       string `json:"end"`
	CreatedAt string `json:"created_at"`
}

func toBlockDTO(block application.AvailabilityBlock) blockDTO {
	return blockDTO{
		ID:        block.ID,
		Kind:      string(block.Kind),
		UserID:    block.UserID,
		Start:     formatTime(block.Start),
		End:       formatTime(block.End),
		CreatedAt: formatTime(block.CreatedAt),
	}
}
