package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
	"github.com/example/supervision-scheduler/internal/recurrence"
)

var (
	adminPrincipal   = Principal{UserID: "admin-1", IsAdmin: true}
	studentPrincipal = Principal{UserID: "student-1"}
	quietLogger      = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func feb(day, hour, minute int) time.Time {
	return time.Date(2025, time.February, day, hour, minute, 0, 0, time.UTC)
}

func directoryUsers() *userStoreStub {
	return newUserStoreStub(
		persistence.User{ID: "student-1", FullName: "Ada Lovelace", Email: "ada@example.com", Role: persistence.RoleStudent},
		persistence.User{ID: "student-2", FullName: "Grace Hopper", Email: "grace@example.com", Role: persistence.RoleStudent},
		persistence.User{ID: "student-3", FullName: "Alan Turing", Email: "alan@example.com", Role: persistence.RoleStudent},
		persistence.User{ID: "admin-1", FullName: "Dr Admin", Email: "admin@example.com", Role: persistence.RoleAdmin},
	)
}

type supervisionHarness struct {
	service  *SupervisionService
	sessions *sessionStoreStub
	blocks   *blockStoreStub
	users    *userStoreStub
}

func newSupervisionHarness(sessions *sessionStoreStub, blocks *blockStoreStub) supervisionHarness {
	if sessions == nil {
		sessions = newSessionStoreStub()
	}
	if blocks == nil {
		blocks = newBlockStoreStub()
	}
	users := directoryUsers()
	conflicts := NewConflictService(sessions, blocks, quietLogger)
	service := NewSupervisionService(sessions, users, conflicts, recurrence.NewEngine(time.UTC), sequentialIDs("id"), fixedClock(feb(1, 12, 0)), quietLogger)
	return supervisionHarness{service: service, sessions: sessions, blocks: blocks, users: users}
}

func validSeriesParams() CreateSeriesParams {
	return CreateSeriesParams{
		Principal:       adminPrincipal,
		Title:           "Thesis supervision",
		SupervisorName:  "Dr Smith",
		Location:        "Room 4.12",
		StartsAt:        feb(3, 10, 0),
		DurationMinutes: 60,
		RepeatUntil:     ptrTime(feb(17, 0, 0)),
		StudentIDs:      []string{"student-1", "student-2", "student-1"},
	}
}

func TestSupervisionService_CreateRecurringSessions(t *testing.T) {
	t.Parallel()

	t.Run("materialises weekly sessions sharing one series", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		result, err := h.service.CreateRecurringSessions(context.Background(), validSeriesParams())
		if err != nil {
			t.Fatalf("CreateRecurringSessions returned error: %v", err)
		}
		if result.SessionCount != 3 || len(result.SessionIDs) != 3 {
			t.Fatalf("expected 3 sessions, got %+v", result)
		}
		if result.SeriesID != "id-1" {
			t.Fatalf("expected series id from generator, got %q", result.SeriesID)
		}
		if len(h.sessions.created) != 1 {
			t.Fatalf("expected one batch insert, got %d", len(h.sessions.created))
		}

		wantStarts := []time.Time{feb(3, 10, 0), feb(10, 10, 0), feb(17, 10, 0)}
		for i, session := range h.sessions.created[0] {
			if session.SeriesID != result.SeriesID {
				t.Fatalf("session %d has series %q", i, session.SeriesID)
			}
			if !session.Start.Equal(wantStarts[i]) || !session.End.Equal(wantStarts[i].Add(time.Hour)) {
				t.Fatalf("session %d window = [%s, %s)", i, session.Start, session.End)
			}
			if len(session.StudentIDs) != 2 {
				t.Fatalf("expected de-duplicated roster, got %v", session.StudentIDs)
			}
		}
		if len(result.Conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", result.Conflicts)
		}
	})

	t.Run("creates a single session without repeat-until", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		params := validSeriesParams()
		params.RepeatUntil = nil
		result, err := h.service.CreateRecurringSessions(context.Background(), params)
		if err != nil {
			t.Fatalf("CreateRecurringSessions returned error: %v", err)
		}
		if result.SessionCount != 1 {
			t.Fatalf("expected one session, got %d", result.SessionCount)
		}
	})

	t.Run("caps long series at 52 sessions", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		params := validSeriesParams()
		params.RepeatUntil = ptrTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
		result, err := h.service.CreateRecurringSessions(context.Background(), params)
		if err != nil {
			t.Fatalf("CreateRecurringSessions returned error: %v", err)
		}
		if result.SessionCount != recurrence.MaxOccurrences {
			t.Fatalf("expected %d sessions, got %d", recurrence.MaxOccurrences, result.SessionCount)
		}
	})

	t.Run("requires administrator privileges", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		params := validSeriesParams()
		params.Principal = studentPrincipal
		if _, err := h.service.CreateRecurringSessions(context.Background(), params); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates required fields", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		params := validSeriesParams()
		params.Title = "   "
		params.DurationMinutes = 0
		_, err := h.service.CreateRecurringSessions(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"title", "duration_minutes"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %+v", field, vErr.FieldErrors)
			}
		}
		if len(h.sessions.created) != 0 {
			t.Fatalf("expected no writes on validation failure")
		}
	})

	t.Run("rejects unknown students before writing", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		params := validSeriesParams()
		params.StudentIDs = []string{"student-1", "ghost"}
		_, err := h.service.CreateRecurringSessions(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["student_ids"]; !ok {
			t.Fatalf("expected student_ids error, got %+v", vErr.FieldErrors)
		}
		if len(h.sessions.created) != 0 {
			t.Fatalf("expected no writes for unknown students")
		}
	})

	t.Run("rejects repeat-until before the start date", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		params := validSeriesParams()
		params.RepeatUntil = ptrTime(feb(1, 0, 0))
		_, err := h.service.CreateRecurringSessions(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["repeat_until"]; !ok {
			t.Fatalf("expected repeat_until error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("reports conflicts without blocking creation", func(t *testing.T) {
		t.Parallel()
		existing := persistence.Session{
			ID:         "existing",
			SeriesID:   "other-series",
			Title:      "Lab meeting",
			Start:      feb(17, 10, 30),
			End:        feb(17, 11, 30),
			StudentIDs: []string{"student-2"},
		}
		blocks := newBlockStoreStub(persistence.AvailabilityBlock{
			ID:     "dentist",
			Kind:   persistence.BlockPersonal,
			UserID: ptrString("student-1"),
			Start:  feb(10, 10, 30),
			End:    feb(10, 11, 0),
		})
		h := newSupervisionHarness(newSessionStoreStub(existing), blocks)

		result, err := h.service.CreateRecurringSessions(context.Background(), validSeriesParams())
		if err != nil {
			t.Fatalf("CreateRecurringSessions returned error: %v", err)
		}
		if result.SessionCount != 3 {
			t.Fatalf("expected creation to proceed, got %d sessions", result.SessionCount)
		}

		second, third := result.SessionIDs[1], result.SessionIDs[2]
		busy := result.Conflicts[second].Availability["student-1"]
		if len(busy) != 1 || busy[0].Reason != "busy" || busy[0].BlockID != "dentist" {
			t.Fatalf("expected busy conflict on second session, got %+v", result.Conflicts[second])
		}
		booked := result.Conflicts[third].Enrollments["student-2"]
		if len(booked) != 1 || booked[0].SessionID != "existing" {
			t.Fatalf("expected enrollment conflict on third session, got %+v", result.Conflicts[third])
		}
		if _, ok := result.Conflicts[result.SessionIDs[0]]; ok {
			t.Fatalf("expected first session to be conflict free")
		}
	})

	t.Run("maps store failures to PersistenceError", func(t *testing.T) {
		t.Parallel()
		sessions := newSessionStoreStub()
		sessions.createErr = errors.New("disk full")
		h := newSupervisionHarness(sessions, nil)

		_, err := h.service.CreateRecurringSessions(context.Background(), validSeriesParams())
		var pErr *PersistenceError
		if !errors.As(err, &pErr) {
			t.Fatalf("expected PersistenceError, got %v", err)
		}
	})

	t.Run("maps foreign key violations to validation errors", func(t *testing.T) {
		t.Parallel()
		sessions := newSessionStoreStub()
		sessions.createErr = persistence.ErrForeignKeyViolation
		h := newSupervisionHarness(sessions, nil)

		_, err := h.service.CreateRecurringSessions(context.Background(), validSeriesParams())
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func seededSession() persistence.Session {
	return persistence.Session{
		ID:             "session-1",
		SeriesID:       "series-1",
		Title:          "Thesis supervision",
		SupervisorName: "Dr Smith",
		Location:       "Room 4.12",
		Start:          feb(3, 10, 0),
		End:            feb(3, 11, 0),
		StudentIDs:     []string{"student-1"},
	}
}

func TestSupervisionService_UpdateSession(t *testing.T) {
	t.Parallel()

	params := func() UpdateSessionParams {
		return UpdateSessionParams{
			Principal:      adminPrincipal,
			SessionID:      "session-1",
			Title:          "Thesis supervision (moved)",
			SupervisorName: "Dr Smith",
			Location:       "Room 1.01",
			StartsAt:       feb(3, 14, 0),
			EndsAt:         feb(3, 15, 0),
			StudentIDs:     []string{"student-2", "student-3"},
		}
	}

	t.Run("replaces fields and roster", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession()), nil)

		updated, err := h.service.UpdateSession(context.Background(), params())
		if err != nil {
			t.Fatalf("UpdateSession returned error: %v", err)
		}
		if updated.Location != "Room 1.01" || !updated.Start.Equal(feb(3, 14, 0)) {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if updated.SeriesID != "series-1" {
			t.Fatalf("expected series to be preserved, got %q", updated.SeriesID)
		}
		stored := h.sessions.sessions["session-1"]
		if len(stored.StudentIDs) != 2 || stored.StudentIDs[0] != "student-2" {
			t.Fatalf("expected roster replacement, got %v", stored.StudentIDs)
		}
	})

	t.Run("returns ErrNotFound for unknown sessions", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(nil, nil)

		p := params()
		p.SessionID = "missing"
		if _, err := h.service.UpdateSession(context.Background(), p); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects end before start", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession()), nil)

		p := params()
		p.EndsAt = p.StartsAt.Add(-time.Minute)
		_, err := h.service.UpdateSession(context.Background(), p)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["ends_at"]; !ok {
			t.Fatalf("expected ends_at error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("never conflicts with itself", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession()), nil)

		p := params()
		p.StudentIDs = []string{"student-1"}
		p.StartsAt, p.EndsAt = feb(3, 10, 30), feb(3, 11, 30)
		report, err := h.service.conflicts.Check(context.Background(), p.StartsAt, p.EndsAt, p.StudentIDs, p.SessionID)
		if err != nil {
			t.Fatalf("Check returned error: %v", err)
		}
		if !report.Empty() {
			t.Fatalf("expected edited session to be excluded, got %+v", report)
		}
		if _, err := h.service.UpdateSession(context.Background(), p); err != nil {
			t.Fatalf("UpdateSession returned error: %v", err)
		}
	})

	t.Run("requires administrator privileges", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession()), nil)

		p := params()
		p.Principal = studentPrincipal
		if _, err := h.service.UpdateSession(context.Background(), p); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestSupervisionService_DeleteSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		principal Principal
		sessionID string
		wantErr   error
	}{
		{name: "administrator deletes", principal: adminPrincipal, sessionID: "session-1"},
		{name: "student is refused", principal: studentPrincipal, sessionID: "session-1", wantErr: ErrUnauthorized},
		{name: "unknown session", principal: adminPrincipal, sessionID: "missing", wantErr: ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newSupervisionHarness(newSessionStoreStub(seededSession()), nil)

			err := h.service.DeleteSession(context.Background(), tc.principal, tc.sessionID)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("DeleteSession returned error: %v", err)
				}
				if len(h.sessions.deleted) != 1 {
					t.Fatalf("expected one delete, got %v", h.sessions.deleted)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSupervisionService_ListSessions(t *testing.T) {
	t.Parallel()

	other := seededSession()
	other.ID = "session-2"
	other.Start, other.End = feb(10, 10, 0), feb(10, 11, 0)
	other.StudentIDs = []string{"student-2"}

	t.Run("students default to their own sessions", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession(), other), nil)

		sessions, err := h.service.ListSessions(context.Background(), studentPrincipal, ListSessionsParams{})
		if err != nil {
			t.Fatalf("ListSessions returned error: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != "session-1" {
			t.Fatalf("expected only own session, got %+v", sessions)
		}
	})

	t.Run("students cannot list other users", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession(), other), nil)

		_, err := h.service.ListSessions(context.Background(), studentPrincipal, ListSessionsParams{UserID: "student-2"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("administrators filter by window", func(t *testing.T) {
		t.Parallel()
		h := newSupervisionHarness(newSessionStoreStub(seededSession(), other), nil)

		sessions, err := h.service.ListSessions(context.Background(), adminPrincipal, ListSessionsParams{
			From: ptrTime(feb(9, 0, 0)),
			To:   ptrTime(feb(11, 0, 0)),
		})
		if err != nil {
			t.Fatalf("ListSessions returned error: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != "session-2" {
			t.Fatalf("expected session-2 only, got %+v", sessions)
		}
	})
}
