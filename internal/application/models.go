package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Role mirrors the directory roles exposed to callers.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// User is a directory entry exposed by the application services.
type User struct {
	ID       string
	FullName string
	Email    string
	Role     Role
}

// Session represents one materialised supervision slot and its roster.
type Session struct {
	ID             string
	SeriesID       string
	Title          string
	SupervisorName string
	Location       string
	Description    string
	Start          time.Time
	End            time.Time
	StudentIDs     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateSeriesParams wraps the data required to materialise a recurring series.
type CreateSeriesParams struct {
	Principal             Principal  `json:"-" validate:"-"`
	Title                 string     `json:"title" validate:"required,max=200"`
	SupervisorName        string     `json:"supervisor_name" validate:"required,max=200"`
	Location              string     `json:"location" validate:"required,max=200"`
	Description           string     `json:"description" validate:"max=2000"`
	StartsAt              time.Time  `json:"starts_at" validate:"required"`
	DurationMinutes       int        `json:"duration_minutes" validate:"required,min=1,max=1440"`
	RepeatUntil           *time.Time `json:"repeat_until"`
	StudentIDs            []string   `json:"student_ids" validate:"dive,required"`
	ConflictsAcknowledged bool       `json:"conflicts_acknowledged"`
}

// SeriesResult describes a freshly materialised series.
type SeriesResult struct {
	SeriesID     string
	SessionIDs   []string
	SessionCount int
	// Conflicts lists advisory conflicts per generated session, keyed by session id.
	Conflicts map[string]SessionConflicts
}

// UpdateSessionParams wraps the data required to edit a single session.
type UpdateSessionParams struct {
	Principal             Principal `json:"-" validate:"-"`
	SessionID             string    `json:"id" validate:"required"`
	Title                 string    `json:"title" validate:"required,max=200"`
	SupervisorName        string    `json:"supervisor_name" validate:"required,max=200"`
	Location              string    `json:"location" validate:"required,max=200"`
	Description           string    `json:"description" validate:"max=2000"`
	StartsAt              time.Time `json:"starts_at" validate:"required"`
	EndsAt                time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	StudentIDs            []string  `json:"student_ids" validate:"dive,required"`
	ConflictsAcknowledged bool      `json:"conflicts_acknowledged"`
}

// ListSessionsParams narrows session listings. Zero values are ignored.
type ListSessionsParams struct {
	UserID   string
	SeriesID string
	From     *time.Time
	To       *time.Time
}

// AvailabilityConflict is a block that overlaps a candidate window.
type AvailabilityConflict struct {
	BlockID string
	Reason  string
	Start   time.Time
	End     time.Time
}

// ConflictingSession is an existing enrollment that overlaps a candidate window.
type ConflictingSession struct {
	SessionID string
	Title     string
	Start     time.Time
	End       time.Time
}

// SessionConflicts groups both conflict kinds for one window.
type SessionConflicts struct {
	Availability map[string][]AvailabilityConflict
	Enrollments  map[string][]ConflictingSession
}

// Empty reports whether no conflicts of either kind were found.
func (c SessionConflicts) Empty() bool {
	return len(c.Availability) == 0 && len(c.Enrollments) == 0
}

// BlockKind distinguishes personal busy slots from organisation-wide blocks.
type BlockKind string

const (
	BlockPersonal BlockKind = "PERSONAL"
	BlockGlobal   BlockKind = "GLOBAL"
)

// AvailabilityBlock is a period during which a user, or everyone, is unavailable.
type AvailabilityBlock struct {
	ID        string
	Kind      BlockKind
	UserID    string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

// AddBlockParams wraps the data required to record an availability block.
type AddBlockParams struct {
	Principal Principal `json:"-" validate:"-"`
	Kind      BlockKind `json:"kind" validate:"required,oneof=PERSONAL GLOBAL"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	EndsAt    time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
}

// SwapStatus is the lifecycle state of a swap request.
type SwapStatus string

const (
	SwapPending   SwapStatus = "PENDING"
	SwapAccepted  SwapStatus = "ACCEPTED"
	SwapRejected  SwapStatus = "REJECTED"
	SwapCancelled SwapStatus = "CANCELLED"
)

// SwapRequest is a proposal to exchange session slots with another student.
type SwapRequest struct {
	ID          string
	SessionID   string
	RequesterID string
	TargetID    string
	Status      SwapStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// SwapRequestView is a swap request with its session and both users resolved.
type SwapRequestView struct {
	SwapRequest
	Session   Session
	Requester User
	Target    User
}

// CreateSwapParams wraps the data required to open a swap request.
type CreateSwapParams struct {
	SessionID   string `json:"session_id" validate:"required"`
	RequesterID string `json:"requester_id" validate:"required"`
	TargetID    string `json:"target_id" validate:"required,nefield=RequesterID"`
}

// SwapCandidate is one student the current user could swap with.
type SwapCandidate struct {
	User    User
	Session Session
	Reason  string
}

// SwapTargets splits swap candidates by availability.
type SwapTargets struct {
	Available   []SwapCandidate
	Unavailable []SwapCandidate
}

// SwapExchange reports which sessions changed hands on acceptance.
type SwapExchange struct {
	RequestID          string
	RequesterSessionID string
	TargetSessionID    string
	RespondedAt        time.Time
}

// SyncUserParams wraps a directory entry pushed by the identity collaborator.
type SyncUserParams struct {
	Principal Principal `json:"-" validate:"-"`
	ID        string    `json:"id" validate:"required"`
	FullName  string    `json:"full_name" validate:"required,max=200"`
	Email     string    `json:"email" validate:"required,email"`
	Role      Role      `json:"role" validate:"required,oneof=STUDENT ADMIN"`
}
