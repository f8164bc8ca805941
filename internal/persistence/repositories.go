package persistence

import (
	"context"
	"time"
)

// UserRepository reads and synchronises directory users.
type UserRepository interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, roles ...Role) ([]User, error)
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
}

// BlockFilter narrows availability block queries.
// A block matches when it overlaps [From, To); nil bounds are open.
// With UserIDs set, only those users' personal blocks match, plus global blocks
// when IncludeGlobal is set. Without UserIDs every block matches when
// IncludeGlobal is set and only personal blocks otherwise. OnlyGlobal wins over both.
type BlockFilter struct {
	UserIDs       []string
	IncludeGlobal bool
	OnlyGlobal    bool
	From          *time.Time
	To            *time.Time
}

// AvailabilityRepository stores availability blocks.
type AvailabilityRepository interface {
	CreateBlock(ctx context.Context, block AvailabilityBlock) error
	GetBlock(ctx context.Context, id string) (AvailabilityBlock, error)
	DeleteBlock(ctx context.Context, id string) error
	ListBlocks(ctx context.Context, filter BlockFilter) ([]AvailabilityBlock, error)
}

// SessionFilter narrows session queries.
type SessionFilter struct {
	UserID     string
	SeriesID   string
	ExcludeID  string
	StartsFrom *time.Time
	// Sessions overlapping [OverlapStart, OverlapEnd) when both are set.
	OverlapStart *time.Time
	OverlapEnd   *time.Time
}

// SessionRepository stores sessions together with their rosters.
type SessionRepository interface {
	// CreateSessions persists every session and its roster in one transaction.
	CreateSessions(ctx context.Context, sessions []Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// UpdateSession updates the session fields and replaces its roster atomically.
	UpdateSession(ctx context.Context, session Session) error
	// DeleteSession removes the session, its enrollments and its swap requests atomically.
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
}

// EnrollmentRepository manages the user/session relation directly.
type EnrollmentRepository interface {
	AddEnrollment(ctx context.Context, enrollment Enrollment) error
	RemoveEnrollment(ctx context.Context, enrollment Enrollment) error
	ReplaceEnrollments(ctx context.Context, sessionID string, userIDs []string) error
	ListEnrollmentsByUser(ctx context.Context, userID string) ([]Enrollment, error)
	ListEnrollmentsBySession(ctx context.Context, sessionID string) ([]Enrollment, error)
}

// SwapRequestRepository stores swap requests and performs the enrollment exchange.
type SwapRequestRepository interface {
	CreateSwapRequest(ctx context.Context, request SwapRequest) error
	GetSwapRequest(ctx context.Context, id string) (SwapRequest, error)
	FindPendingSwapRequest(ctx context.Context, sessionID, requesterID, targetID string) (SwapRequest, error)
	ListSwapRequestsForUser(ctx context.Context, userID string) ([]SwapRequestView, error)
	CountPendingForTarget(ctx context.Context, userID string) (int, error)
	// ResolveSwapRequest moves a pending request to status; ErrNotPending if it already left PENDING.
	ResolveSwapRequest(ctx context.Context, id string, status SwapStatus, respondedAt time.Time) error
	// ExchangeEnrollments swaps the two enrollments and marks the request accepted in one transaction.
	ExchangeEnrollments(ctx context.Context, id string, respondedAt time.Time) (SwapExchange, error)
}
