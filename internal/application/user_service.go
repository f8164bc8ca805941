package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
)

// UserRepository captures the directory persistence used by the user service.
type UserRepository interface {
	UpsertUser(ctx context.Context, user persistence.User) error
	ListUsers(ctx context.Context, roles ...persistence.Role) ([]persistence.User, error)
}

// UserService serves the assignable-user directory and accepts directory updates.
type UserService struct {
	users  UserRepository
	cache  *directoryCache
	logger *slog.Logger
}

// NewUserService wires dependencies for directory operations. cacheTTL <= 0 selects the default.
func NewUserService(users UserRepository, cacheTTL time.Duration, now func() time.Time, logger *slog.Logger) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:  users,
		cache:  newDirectoryCache(cacheTTL, now),
		logger: defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// ListAssignable returns every student and administrator ordered by name.
func (s *UserService) ListAssignable(ctx context.Context, principal Principal) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if cached, ok := s.cache.Get(); ok {
		return cached, nil
	}
	if s.users == nil {
		return nil, nil
	}

	records, err := s.users.ListUsers(ctx, persistence.RoleStudent, persistence.RoleAdmin)
	if err != nil {
		err = mapRepoError("list users", err)
		s.loggerWith(ctx, "ListAssignable").ErrorContext(ctx, "directory listing failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	users := make([]User, len(records))
	for i, record := range records {
		users[i] = toUser(record)
	}
	s.cache.Store(users)
	return cloneUsers(users), nil
}

// SyncUser stores a directory entry pushed by the identity provider. Administrators only.
func (s *UserService) SyncUser(ctx context.Context, params SyncUserParams) (user User, err error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}

	logger := s.loggerWith(ctx, "SyncUser", "principal_id", params.Principal.UserID, "user_id", params.ID)
	defer func() { logOutcome(ctx, logger, err, "directory sync") }()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	params.ID = strings.TrimSpace(params.ID)
	params.FullName = strings.TrimSpace(params.FullName)
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	if vErr := validateStruct(params); vErr != nil {
		err = vErr
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	record := persistence.User{
		ID:       params.ID,
		FullName: params.FullName,
		Email:    params.Email,
		Role:     persistence.Role(params.Role),
	}
	if upsertErr := s.users.UpsertUser(ctx, record); upsertErr != nil {
		if errors.Is(upsertErr, persistence.ErrDuplicate) {
			err = newValidationError("email", "is already used by another user")
			return
		}
		err = mapRepoError("upsert user", upsertErr)
		return
	}
	s.cache.Invalidate()
	user = toUser(record)
	return
}
