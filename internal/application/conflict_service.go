package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/supervision-scheduler/internal/persistence"
	"github.com/example/supervision-scheduler/internal/scheduler"
)

// SessionReader exposes the session lookups needed for conflict detection and discovery.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (persistence.Session, error)
	ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error)
}

// BlockReader exposes availability block lookups.
type BlockReader interface {
	ListBlocks(ctx context.Context, filter persistence.BlockFilter) ([]persistence.AvailabilityBlock, error)
}

const conflictLoadConcurrency = 4

// ConflictService loads blocks and enrollments and runs the pure detectors over them.
// Results are advisory; only store failures are returned as errors.
type ConflictService struct {
	sessions SessionReader
	blocks   BlockReader
	logger   *slog.Logger
}

// NewConflictService wires dependencies for conflict detection.
func NewConflictService(sessions SessionReader, blocks BlockReader, logger *slog.Logger) *ConflictService {
	return &ConflictService{sessions: sessions, blocks: blocks, logger: defaultLogger(logger)}
}

func (s *ConflictService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ConflictService", operation, attrs...)
}

// CheckAvailabilityConflicts reports, per student, the blocks overlapping [start, end).
func (s *ConflictService) CheckAvailabilityConflicts(ctx context.Context, start, end time.Time, studentIDs []string) (map[string][]AvailabilityConflict, error) {
	if s == nil {
		return nil, fmt.Errorf("ConflictService is nil")
	}
	window, err := newWindow(start, end)
	if err != nil {
		return nil, err
	}
	ids := dedupeIDs(studentIDs)
	blocks, err := s.loadBlocks(ctx, window, ids)
	if err != nil {
		s.loggerWith(ctx, "CheckAvailabilityConflicts").ErrorContext(ctx, "availability check failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return toAvailabilityConflicts(scheduler.AvailabilityConflicts(window, ids, blocks)), nil
}

// CheckEnrollmentConflicts reports, per student, the sessions they already attend that overlap [start, end).
// excludeSessionID is ignored so a session never conflicts with itself.
func (s *ConflictService) CheckEnrollmentConflicts(ctx context.Context, start, end time.Time, studentIDs []string, excludeSessionID string) (map[string][]ConflictingSession, error) {
	if s == nil {
		return nil, fmt.Errorf("ConflictService is nil")
	}
	window, err := newWindow(start, end)
	if err != nil {
		return nil, err
	}
	ids := dedupeIDs(studentIDs)
	bookings, err := s.loadBookings(ctx, window, ids)
	if err != nil {
		s.loggerWith(ctx, "CheckEnrollmentConflicts").ErrorContext(ctx, "enrollment check failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return toConflictingSessions(scheduler.EnrollmentConflicts(window, ids, bookings, excludeSessionID)), nil
}

// Check runs both detectors for a single window.
func (s *ConflictService) Check(ctx context.Context, start, end time.Time, studentIDs []string, excludeSessionID string) (SessionConflicts, error) {
	if s == nil {
		return SessionConflicts{}, fmt.Errorf("ConflictService is nil")
	}
	window, err := newWindow(start, end)
	if err != nil {
		return SessionConflicts{}, err
	}
	reports, err := s.checkWindows(ctx, []scheduler.Interval{window}, studentIDs, excludeSessionID)
	if err != nil {
		return SessionConflicts{}, err
	}
	return reports[0], nil
}

// checkWindows loads blocks and bookings once over the span of all windows
// and evaluates each window against them.
func (s *ConflictService) checkWindows(ctx context.Context, windows []scheduler.Interval, studentIDs []string, excludeSessionID string) ([]SessionConflicts, error) {
	reports := make([]SessionConflicts, len(windows))
	ids := dedupeIDs(studentIDs)
	if len(windows) == 0 || len(ids) == 0 {
		return reports, nil
	}

	span := windows[0]
	for _, w := range windows[1:] {
		if w.Start.Before(span.Start) {
			span.Start = w.Start
		}
		if w.End.After(span.End) {
			span.End = w.End
		}
	}

	var (
		blocks   []scheduler.Block
		bookings []scheduler.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blocks, err = s.loadBlocks(gctx, span, ids)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = s.loadBookings(gctx, span, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		s.loggerWith(ctx, "checkWindows", "windows", len(windows), "students", len(ids)).
			ErrorContext(ctx, "conflict load failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	for i, w := range windows {
		reports[i] = SessionConflicts{
			Availability: toAvailabilityConflicts(scheduler.AvailabilityConflicts(w, ids, blocks)),
			Enrollments:  toConflictingSessions(scheduler.EnrollmentConflicts(w, ids, bookings, excludeSessionID)),
		}
	}
	return reports, nil
}

func (s *ConflictService) loadBlocks(ctx context.Context, window scheduler.Interval, userIDs []string) ([]scheduler.Block, error) {
	if s.blocks == nil || len(userIDs) == 0 {
		return nil, nil
	}
	from, to := window.Start, window.End
	records, err := s.blocks.ListBlocks(ctx, persistence.BlockFilter{
		UserIDs:       userIDs,
		IncludeGlobal: true,
		From:          &from,
		To:            &to,
	})
	if err != nil {
		return nil, mapRepoError("list availability blocks", err)
	}
	return toSchedulerBlocks(records), nil
}

func (s *ConflictService) loadBookings(ctx context.Context, window scheduler.Interval, userIDs []string) ([]scheduler.Booking, error) {
	if s.sessions == nil || len(userIDs) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		bookings []scheduler.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conflictLoadConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			from, to := window.Start, window.End
			sessions, err := s.sessions.ListSessions(gctx, persistence.SessionFilter{
				UserID:       userID,
				OverlapStart: &from,
				OverlapEnd:   &to,
			})
			if err != nil {
				return mapRepoError("list enrolled sessions", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, session := range sessions {
				bookings = append(bookings, scheduler.Booking{
					SessionID: session.ID,
					UserID:    userID,
					Title:     session.Title,
					Window:    scheduler.Interval{Start: session.Start, End: session.End},
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func newWindow(start, end time.Time) (scheduler.Interval, error) {
	window, err := scheduler.NewInterval(start, end)
	if err != nil {
		return scheduler.Interval{}, newValidationError("ends_at", "must be after starts_at")
	}
	return window, nil
}

func toSchedulerBlocks(records []persistence.AvailabilityBlock) []scheduler.Block {
	blocks := make([]scheduler.Block, 0, len(records))
	for _, record := range records {
		block := scheduler.Block{
			ID:     record.ID,
			Kind:   scheduler.BlockKindPersonal,
			Window: scheduler.Interval{Start: record.Start, End: record.End},
		}
		if record.Kind == persistence.BlockGlobal {
			block.Kind = scheduler.BlockKindGlobal
		}
		if record.UserID != nil {
			block.UserID = *record.UserID
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func toAvailabilityConflicts(in map[string][]scheduler.AvailabilityConflict) map[string][]AvailabilityConflict {
	out := make(map[string][]AvailabilityConflict, len(in))
	for userID, conflicts := range in {
		converted := make([]AvailabilityConflict, len(conflicts))
		for i, c := range conflicts {
			converted[i] = AvailabilityConflict{BlockID: c.BlockID, Reason: c.Reason, Start: c.Window.Start, End: c.Window.End}
		}
		out[userID] = converted
	}
	return out
}

func toConflictingSessions(in map[string][]scheduler.BookingConflict) map[string][]ConflictingSession {
	out := make(map[string][]ConflictingSession, len(in))
	for userID, conflicts := range in {
		converted := make([]ConflictingSession, len(conflicts))
		for i, c := range conflicts {
			converted[i] = ConflictingSession{SessionID: c.SessionID, Title: c.Title, Start: c.Window.Start, End: c.Window.End}
		}
		out[userID] = converted
	}
	return out
}
