package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/supervision-scheduler/internal/application"
)

type userService interface {
	ListAssignable(ctx context.Context, principal application.Principal) ([]application.User, error)
	SyncUser(ctx context.Context, params application.SyncUserParams) (application.User, error)
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	users, err := h.service.ListAssignable(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]userDTO, 0, len(users))
	for _, user := range users {
		out = append(out, toUserDTO(user))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listUsersResponse{Users: out})
}

// Sync upserts one directory entry pushed by the identity provider.
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID := strings.TrimSpace(r.PathValue("id"))
	var req syncUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Sync", "user_id", userID).WarnContext(r.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	user, err := h.service.SyncUser(r.Context(), application.SyncUserParams{
		Principal: principal,
		ID:        userID,
		FullName:  strings.TrimSpace(req.FullName),
		Email:     strings.TrimSpace(req.Email),
		Role:      application.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

type syncUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

type listUsersResponse struct {
	Users []userDTO `json:"users"`
}

type userDTO struct {
	ID       string `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
		Role:     string(user.Role),
	}
}
