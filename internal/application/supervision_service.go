package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
	"github.com/example/supervision-scheduler/internal/recurrence"
	"github.com/example/supervision-scheduler/internal/scheduler"
)

// SessionStore captures the session persistence used by the supervision service.
type SessionStore interface {
	SessionReader
	CreateSessions(ctx context.Context, sessions []persistence.Session) error
	UpdateSession(ctx context.Context, session persistence.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// UserDirectory exposes user lookup operations.
type UserDirectory interface {
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
}

// SupervisionService materialises recurring series and manages individual sessions.
type SupervisionService struct {
	sessions    SessionStore
	users       UserDirectory
	conflicts   *ConflictService
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSupervisionService wires dependencies for session operations.
func NewSupervisionService(sessions SessionStore, users UserDirectory, conflicts *ConflictService, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SupervisionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	return &SupervisionService{
		sessions:    sessions,
		users:       users,
		conflicts:   conflicts,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SupervisionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SupervisionService", operation, attrs...)
}

// CreateRecurringSessions expands the weekly series, enrolls every student in each
// occurrence and persists the whole batch atomically. Conflicts are reported, never enforced.
func (s *SupervisionService) CreateRecurringSessions(ctx context.Context, params CreateSeriesParams) (result SeriesResult, err error) {
	if s == nil {
		return SeriesResult{}, fmt.Errorf("SupervisionService is nil")
	}

	logger := s.loggerWith(ctx, "CreateRecurringSessions",
		"principal_id", params.Principal.UserID,
		"conflicts_acknowledged", params.ConflictsAcknowledged,
	)
	defer func() {
		logOutcome(ctx, logger.With("series_id", result.SeriesID, "session_count", result.SessionCount), err, "series creation")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session store not configured")
		return
	}

	params.Title = strings.TrimSpace(params.Title)
	params.SupervisorName = strings.TrimSpace(params.SupervisorName)
	params.Location = strings.TrimSpace(params.Location)
	if vErr := validateStruct(params); vErr != nil {
		err = vErr
		return
	}

	students := dedupeIDs(params.StudentIDs)
	if err = s.ensureUsersExist(ctx, students); err != nil {
		return
	}

	occurrences, expandErr := s.engine.Expand(recurrence.Request{
		Start:       params.StartsAt,
		Duration:    time.Duration(params.DurationMinutes) * time.Minute,
		RepeatUntil: params.RepeatUntil,
	})
	if expandErr != nil {
		err = mapExpandError(expandErr)
		return
	}

	seriesID := s.idGenerator()
	createdAt := s.now()
	sessions := make([]persistence.Session, len(occurrences))
	windows := make([]scheduler.Interval, len(occurrences))
	for i, occ := range occurrences {
		sessions[i] = persistence.Session{
			ID:             s.idGenerator(),
			SeriesID:       seriesID,
			Title:          params.Title,
			SupervisorName: params.SupervisorName,
			Location:       params.Location,
			Description:    optionalString(params.Description),
			Start:          occ.Start,
			End:            occ.End,
			StudentIDs:     students,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		}
		windows[i] = scheduler.Interval{Start: occ.Start, End: occ.End}
	}

	conflicts := make(map[string]SessionConflicts)
	if s.conflicts != nil {
		reports, checkErr := s.conflicts.checkWindows(ctx, windows, students, "")
		if checkErr != nil {
			err = checkErr
			return
		}
		for i, report := range reports {
			if !report.Empty() {
				conflicts[sessions[i].ID] = report
			}
		}
	}
	if len(conflicts) > 0 && !params.ConflictsAcknowledged {
		logger.WarnContext(ctx, "series created over unacknowledged conflicts", "conflicted_sessions", len(conflicts))
	}

	if persistErr := s.sessions.CreateSessions(ctx, sessions); persistErr != nil {
		err = mapRepoError("create sessions", persistErr)
		return
	}

	ids := make([]string, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID
	}
	result = SeriesResult{
		SeriesID:     seriesID,
		SessionIDs:   ids,
		SessionCount: len(ids),
		Conflicts:    conflicts,
	}
	return
}

// UpdateSession edits one session and replaces its roster. Sibling sessions are untouched.
func (s *SupervisionService) UpdateSession(ctx context.Context, params UpdateSessionParams) (updated Session, err error) {
	if s == nil {
		return Session{}, fmt.Errorf("SupervisionService is nil")
	}

	logger := s.loggerWith(ctx, "UpdateSession",
		"principal_id", params.Principal.UserID,
		"session_id", params.SessionID,
		"conflicts_acknowledged", params.ConflictsAcknowledged,
	)
	defer func() { logOutcome(ctx, logger, err, "session update") }()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session store not configured")
		return
	}

	params.Title = strings.TrimSpace(params.Title)
	params.SupervisorName = strings.TrimSpace(params.SupervisorName)
	params.Location = strings.TrimSpace(params.Location)
	if vErr := validateStruct(params); vErr != nil {
		err = vErr
		return
	}

	existing, getErr := s.sessions.GetSession(ctx, params.SessionID)
	if getErr != nil {
		err = mapRepoError("get session", getErr)
		return
	}

	students := dedupeIDs(params.StudentIDs)
	if err = s.ensureUsersExist(ctx, students); err != nil {
		return
	}

	if s.conflicts != nil {
		report, checkErr := s.conflicts.Check(ctx, params.StartsAt, params.EndsAt, students, existing.ID)
		if checkErr != nil {
			err = checkErr
			return
		}
		if !report.Empty() && !params.ConflictsAcknowledged {
			logger.WarnContext(ctx, "session updated over unacknowledged conflicts",
				"availability_conflicts", len(report.Availability),
				"enrollment_conflicts", len(report.Enrollments),
			)
		}
	}

	next := existing
	next.Title = params.Title
	next.SupervisorName = params.SupervisorName
	next.Location = params.Location
	next.Description = optionalString(params.Description)
	next.Start = params.StartsAt
	next.End = params.EndsAt
	next.StudentIDs = students
	next.UpdatedAt = s.now()

	if persistErr := s.sessions.UpdateSession(ctx, next); persistErr != nil {
		err = mapRepoError("update session", persistErr)
		return
	}
	updated = toSession(next)
	return
}

// DeleteSession removes a session together with its enrollments and swap requests.
func (s *SupervisionService) DeleteSession(ctx context.Context, principal Principal, sessionID string) (err error) {
	if s == nil {
		return fmt.Errorf("SupervisionService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteSession", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() { logOutcome(ctx, logger, err, "session deletion") }()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.sessions == nil {
		return fmt.Errorf("session store not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return ErrNotFound
	}
	if delErr := s.sessions.DeleteSession(ctx, sessionID); delErr != nil {
		return mapRepoError("delete session", delErr)
	}
	return nil
}

// GetSession returns a session with its roster.
func (s *SupervisionService) GetSession(ctx context.Context, principal Principal, sessionID string) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("SupervisionService is nil")
	}
	if principal.UserID == "" {
		return Session{}, ErrUnauthorized
	}
	if s.sessions == nil {
		return Session{}, ErrNotFound
	}
	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, mapRepoError("get session", err)
	}
	return toSession(record), nil
}

// ListSessions returns sessions ordered by start. Students may only list their own sessions.
func (s *SupervisionService) ListSessions(ctx context.Context, principal Principal, params ListSessionsParams) ([]Session, error) {
	if s == nil {
		return nil, fmt.Errorf("SupervisionService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if !principal.IsAdmin {
		if params.UserID == "" {
			params.UserID = principal.UserID
		}
		if params.UserID != principal.UserID {
			return nil, ErrUnauthorized
		}
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return nil, newValidationError("to", "must be after from")
	}
	if s.sessions == nil {
		return nil, nil
	}

	filter := persistence.SessionFilter{
		UserID:   params.UserID,
		SeriesID: params.SeriesID,
	}
	switch {
	case params.From != nil && params.To != nil:
		filter.OverlapStart = params.From
		filter.OverlapEnd = params.To
	case params.From != nil:
		filter.StartsFrom = params.From
	}

	records, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, mapRepoError("list sessions", err)
	}
	out := make([]Session, 0, len(records))
	for _, record := range records {
		if params.To != nil && params.From == nil && !record.Start.Before(*params.To) {
			continue
		}
		out = append(out, toSession(record))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *SupervisionService) ensureUsersExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 || s.users == nil {
		return nil
	}
	missing, err := s.users.MissingUserIDs(ctx, ids)
	if err != nil {
		return mapRepoError("lookup users", err)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return newValidationError("student_ids", "unknown users: "+strings.Join(missing, ", "))
	}
	return nil
}

func mapExpandError(err error) error {
	switch {
	case errors.Is(err, recurrence.ErrUntilBeforeStart):
		return newValidationError("repeat_until", "must not be before the start date")
	case errors.Is(err, recurrence.ErrInvalidDuration):
		return newValidationError("duration_minutes", "must be positive")
	case errors.Is(err, recurrence.ErrMissingStart):
		return newValidationError("starts_at", "is required")
	default:
		return err
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func toSession(record persistence.Session) Session {
	session := Session{
		ID:             record.ID,
		SeriesID:       record.SeriesID,
		Title:          record.Title,
		SupervisorName: record.SupervisorName,
		Location:       record.Location,
		Start:          record.Start,
		End:            record.End,
		StudentIDs:     append([]string(nil), record.StudentIDs...),
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	if record.Description != nil {
		session.Description = *record.Description
	}
	return session
}
