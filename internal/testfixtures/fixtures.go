package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/supervision-scheduler/internal/application"
	"github.com/example/supervision-scheduler/internal/persistence"
)

var (
	userCounter    uint64
	sessionCounter uint64
	seriesCounter  uint64
	blockCounter   uint64
	swapCounter    uint64
)

// Monday 3 February 2025, 09:00 UTC. London is on GMT at this date.
var referenceTime = time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// fixtureUUID returns a stable UUID for the kind and sequence number.
func fixtureUUID(kind string, idx uint64) string {
	g := NewUUIDGenerator(kind)
	g.counter = idx - 1
	return g.Next()
}

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic directory entry.
type UserFixture struct {
	ID        string
	FullName  string
	Email     string
	Role      persistence.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a student fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(-time.Duration(idx) * time.Hour)
	fixture := UserFixture{
		ID:        id,
		FullName:  fmt.Sprintf("Student %03d", idx),
		Email:     fmt.Sprintf("%s@example.com", id),
		Role:      persistence.RoleStudent,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserName overrides the generated full name.
func WithUserName(name string) UserOption {
	return func(f *UserFixture) {
		f.FullName = name
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// AsAdmin gives the fixture the ADMIN role.
func AsAdmin() UserOption {
	return func(f *UserFixture) {
		f.Role = persistence.RoleAdmin
	}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:        f.ID,
		FullName:  f.FullName,
		Email:     f.Email,
		Role:      f.Role,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:       f.ID,
		FullName: f.FullName,
		Email:    f.Email,
		Role:     application.Role(f.Role),
	}
}

// Principal returns the principal acting as this user.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, IsAdmin: f.Role == persistence.RoleAdmin}
}

// --------------------------- Session fixtures ----------------------------

// SessionFixture is a deterministic supervision session.
type SessionFixture struct {
	ID             string
	SeriesID       string
	Title          string
	SupervisorName string
	Location       string
	Description    *string
	Start          time.Time
	End            time.Time
	StudentIDs     []string
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a one hour session starting at ReferenceTime in a
// series of its own.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	series := atomic.AddUint64(&seriesCounter, 1)
	fixture := SessionFixture{
		ID:             fixtureUUID("session", idx),
		SeriesID:       fixtureUUID("series", series),
		Title:          fmt.Sprintf("Supervision %03d", idx),
		SupervisorName: "Dr Supervisor",
		Location:       "Room 101",
		Start:          referenceTime,
		End:            referenceTime.Add(time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// NewSeriesFixture returns count weekly sessions sharing one series. Options
// apply to every session before the weekly offset is added.
func NewSeriesFixture(count int, opts ...SessionOption) []SessionFixture {
	seriesID := fixtureUUID("series", atomic.AddUint64(&seriesCounter, 1))
	out := make([]SessionFixture, 0, count)
	for week := range count {
		session := NewSessionFixture(append([]SessionOption{WithSeriesID(seriesID)}, opts...)...)
		session.Start = session.Start.AddDate(0, 0, 7*week)
		session.End = session.End.AddDate(0, 0, 7*week)
		out = append(out, session)
	}
	return out
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSeriesID places the session in the given series.
func WithSeriesID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.SeriesID = id
	}
}

// WithSessionTitle overrides the generated title.
func WithSessionTitle(title string) SessionOption {
	return func(f *SessionFixture) {
		f.Title = title
	}
}

// WithSessionDescription sets the optional description.
func WithSessionDescription(description string) SessionOption {
	return func(f *SessionFixture) {
		f.Description = &description
	}
}

// WithSessionWindow sets the session to [start, start+d).
func WithSessionWindow(start time.Time, d time.Duration) SessionOption {
	return func(f *SessionFixture) {
		f.Start = start
		f.End = start.Add(d)
	}
}

// WithStudents sets the roster.
func WithStudents(ids ...string) SessionOption {
	return func(f *SessionFixture) {
		f.StudentIDs = append([]string(nil), ids...)
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:             f.ID,
		SeriesID:       f.SeriesID,
		Title:          f.Title,
		SupervisorName: f.SupervisorName,
		Location:       f.Location,
		Description:    copyStringPtr(f.Description),
		Start:          f.Start,
		End:            f.End,
		StudentIDs:     append([]string(nil), f.StudentIDs...),
	}
}

// SessionsPersistence converts a slice of fixtures.
func SessionsPersistence(fixtures []SessionFixture) []persistence.Session {
	out := make([]persistence.Session, 0, len(fixtures))
	for _, f := range fixtures {
		out = append(out, f.Persistence())
	}
	return out
}

// ---------------------------- Block fixtures -----------------------------

// BlockFixture is a deterministic availability block.
type BlockFixture struct {
	ID        string
	Kind      persistence.BlockKind
	UserID    *string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

// BlockOption configures the generated block fixture.
type BlockOption func(*BlockFixture)

// NewBlockFixture returns a global block covering the hour at ReferenceTime.
// Use WithBlockOwner for a personal block.
func NewBlockFixture(opts ...BlockOption) BlockFixture {
	idx := atomic.AddUint64(&blockCounter, 1)
	fixture := BlockFixture{
		ID:        fixtureUUID("block", idx),
		Kind:      persistence.BlockGlobal,
		Start:     referenceTime,
		End:       referenceTime.Add(time.Hour),
		CreatedAt: referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBlockOwner makes the block a personal block of userID.
func WithBlockOwner(userID string) BlockOption {
	return func(f *BlockFixture) {
		f.Kind = persistence.BlockPersonal
		f.UserID = &userID
	}
}

// WithBlockWindow sets the block to [start, start+d).
func WithBlockWindow(start time.Time, d time.Duration) BlockOption {
	return func(f *BlockFixture) {
		f.Start = start
		f.End = start.Add(d)
	}
}

// Persistence returns the fixture as a persistence.AvailabilityBlock value.
func (f BlockFixture) Persistence() persistence.AvailabilityBlock {
	return persistence.AvailabilityBlock{
		ID:        f.ID,
		Kind:      f.Kind,
		UserID:    copyStringPtr(f.UserID),
		Start:     f.Start,
		End:       f.End,
		CreatedAt: f.CreatedAt,
	}
}

// ------------------------- Swap request fixtures -------------------------

// SwapRequestFixture is a deterministic swap request.
type SwapRequestFixture struct {
	ID          string
	SessionID   string
	RequesterID string
	TargetID    string
	Status      persistence.SwapStatus
	CreatedAt   time.Time
}

// SwapRequestOption configures the generated swap request fixture.
type SwapRequestOption func(*SwapRequestFixture)

// NewSwapRequestFixture returns a PENDING request for the given parties.
func NewSwapRequestFixture(sessionID, requesterID, targetID string, opts ...SwapRequestOption) SwapRequestFixture {
	idx := atomic.AddUint64(&swapCounter, 1)
	fixture := SwapRequestFixture{
		ID:          fixtureUUID("swap", idx),
		SessionID:   sessionID,
		RequesterID: requesterID,
		TargetID:    targetID,
		Status:      persistence.SwapPending,
		CreatedAt:   referenceTime.Add(-time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSwapStatus overrides the status.
func WithSwapStatus(status persistence.SwapStatus) SwapRequestOption {
	return func(f *SwapRequestFixture) {
		f.Status = status
	}
}

// WithSwapCreatedAt overrides the creation time.
func WithSwapCreatedAt(t time.Time) SwapRequestOption {
	return func(f *SwapRequestFixture) {
		f.CreatedAt = t
	}
}

// Persistence returns the fixture as a persistence.SwapRequest value.
func (f SwapRequestFixture) Persistence() persistence.SwapRequest {
	return persistence.SwapRequest{
		ID:          f.ID,
		SessionID:   f.SessionID,
		RequesterID: f.RequesterID,
		TargetID:    f.TargetID,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
	}
}

func copyStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
