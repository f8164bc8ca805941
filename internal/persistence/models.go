package persistence

import "time"

// Role enumerates the directory roles the scheduler cares about.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// User is a directory entry synchronised from the identity provider.
type User struct {
	ID        string
	FullName  string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlockKind distinguishes personal busy slots from global blackouts.
type BlockKind string

const (
	BlockPersonal BlockKind = "PERSONAL"
	BlockGlobal   BlockKind = "GLOBAL"
)

// AvailabilityBlock is a period during which a user (or everyone) is unavailable.
type AvailabilityBlock struct {
	ID        string
	Kind      BlockKind
	UserID    *string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

// Session is one materialised supervision slot.
type Session struct {
	ID             string
	SeriesID       string
	Title          string
	SupervisorName string
	Location       string
	Description    *string
	Start          time.Time
	End            time.Time
	StudentIDs     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Enrollment pairs a user with a session.
type Enrollment struct {
	UserID    string
	SessionID string
}

// SwapStatus is the lifecycle state of a swap request.
type SwapStatus string

const (
	SwapPending   SwapStatus = "PENDING"
	SwapAccepted  SwapStatus = "ACCEPTED"
	SwapRejected  SwapStatus = "REJECTED"
	SwapCancelled SwapStatus = "CANCELLED"
)

// SwapRequest records a proposal to exchange session slots between two students.
type SwapRequest struct {
	ID          string
	SessionID   string
	RequesterID string
	TargetID    string
	Status      SwapStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// SwapRequestView is a swap request joined with its session and both users.
type SwapRequestView struct {
	SwapRequest
	Session   Session
	Requester User
	Target    User
}

// SwapExchange is the outcome of an accepted swap.
type SwapExchange struct {
	RequesterSessionID string
	TargetSessionID    string
	RespondedAt        time.Time
}
