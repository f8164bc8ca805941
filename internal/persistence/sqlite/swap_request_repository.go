package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
)

// SwapRequestRepository implements persistence.SwapRequestRepository using SQLite.
type SwapRequestRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSwapRequestRepository creates a SQLite swap request repository.
func NewSwapRequestRepository(pool *ConnectionPool) *SwapRequestRepository {
	return &SwapRequestRepository{pool: pool, mapper: NewErrorMapper()}
}

const swapColumns = `r.id, r.session_id, r.requester_id, r.target_id, r.status, r.created_at, r.responded_at`

// CreateSwapRequest stores a new request. A second PENDING request for the same
// (session, requester, target) triple is rejected with ErrDuplicate.
func (r *SwapRequestRepository) CreateSwapRequest(ctx context.Context, request persistence.SwapRequest) error {
	if request.ID == "" {
		return persistence.NewConstraintError("id", "is required")
	}
	if request.RequesterID == request.TargetID {
		return persistence.NewConstraintError("target_id", "must differ from the requester")
	}
	const query = `
		INSERT INTO swap_requests (id, session_id, requester_id, target_id, status, created_at, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.pool.DB().ExecContext(ctx, query,
		request.ID,
		request.SessionID,
		request.RequesterID,
		request.TargetID,
		string(request.Status),
		formatTime(request.CreatedAt),
		nullTime(request.RespondedAt),
	)
	return r.mapper.MapError(err)
}

// GetSwapRequest retrieves a request by ID.
func (r *SwapRequestRepository) GetSwapRequest(ctx context.Context, id string) (persistence.SwapRequest, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+swapColumns+` FROM swap_requests r WHERE r.id = ?`, id)
	request, err := scanSwapRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.SwapRequest{}, persistence.ErrNotFound
		}
		return persistence.SwapRequest{}, r.mapper.MapError(err)
	}
	return request, nil
}

// FindPendingSwapRequest returns the pending request for the triple, or ErrNotFound.
func (r *SwapRequestRepository) FindPendingSwapRequest(ctx context.Context, sessionID, requesterID, targetID string) (persistence.SwapRequest, error) {
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+swapColumns+` FROM swap_requests r
		WHERE r.session_id = ? AND r.requester_id = ? AND r.target_id = ? AND r.status = 'PENDING'`,
		sessionID, requesterID, targetID)
	request, err := scanSwapRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.SwapRequest{}, persistence.ErrNotFound
		}
		return persistence.SwapRequest{}, r.mapper.MapError(err)
	}
	return request, nil
}

// ListSwapRequestsForUser returns requests sent or received by the user, newest first.
func (r *SwapRequestRepository) ListSwapRequestsForUser(ctx context.Context, userID string) ([]persistence.SwapRequestView, error) {
	query := `
		SELECT ` + swapColumns + `, ` + sessionColumns + `,
			ru.id, ru.full_name, ru.email, ru.role, ru.created_at, ru.updated_at,
			tu.id, tu.full_name, tu.email, tu.role, tu.created_at, tu.updated_at
		FROM swap_requests r
		JOIN supervision_sessions s ON s.id = r.session_id
		JOIN users ru ON ru.id = r.requester_id
		JOIN users tu ON tu.id = r.target_id
		WHERE r.requester_id = ? OR r.target_id = ?
		ORDER BY r.created_at DESC, r.id DESC`

	rows, err := r.pool.DB().QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var views []persistence.SwapRequestView
	for rows.Next() {
		view, err := scanSwapRequestView(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		views = append(views, view)
	}
	return views, r.mapper.MapError(rows.Err())
}

// CountPendingForTarget counts PENDING requests awaiting the user's answer.
func (r *SwapRequestRepository) CountPendingForTarget(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM swap_requests WHERE target_id = ? AND status = 'PENDING'`, userID).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// ResolveSwapRequest moves a PENDING request to a terminal status.
func (r *SwapRequestRepository) ResolveSwapRequest(ctx context.Context, id string, status persistence.SwapStatus, respondedAt time.Time) error {
	if status == persistence.SwapPending {
		return persistence.NewConstraintError("status", "must be a resolved status")
	}
	return r.pool.WithWriteTransaction(ctx, func(tx *sql.Tx) error {
		return markResolved(ctx, tx, r.mapper, id, status, respondedAt)
	})
}

// ExchangeEnrollments performs an accepted swap in one transaction:
// the requester moves from the request's session A into the target's session B
// of the same series, the target moves from B into A, and the request becomes ACCEPTED.
// B is the target's earliest session in the series, other than A, that the
// requester does not already attend.
func (r *SwapRequestRepository) ExchangeEnrollments(ctx context.Context, id string, respondedAt time.Time) (persistence.SwapExchange, error) {
	var exchange persistence.SwapExchange

	err := r.pool.WithWriteTransaction(ctx, func(tx *sql.Tx) error {
		request, err := scanSwapRequest(tx.QueryRowContext(ctx, `SELECT `+swapColumns+` FROM swap_requests r WHERE r.id = ?`, id))
		if err != nil {
			return r.mapper.MapError(err)
		}
		if request.Status != persistence.SwapPending {
			return persistence.ErrNotPending
		}

		var seriesID string
		if err := tx.QueryRowContext(ctx, `SELECT series_id FROM supervision_sessions WHERE id = ?`, request.SessionID).Scan(&seriesID); err != nil {
			return r.mapper.MapError(err)
		}

		var targetSessionID string
		err = tx.QueryRowContext(ctx, `
			SELECT s.id
			FROM supervision_sessions s
			JOIN enrollments e ON e.session_id = s.id AND e.user_id = ?
			WHERE s.series_id = ? AND s.id <> ?
			  AND NOT EXISTS (
			    SELECT 1 FROM enrollments r WHERE r.session_id = s.id AND r.user_id = ?
			  )
			ORDER BY s.start_time ASC, s.id ASC
			LIMIT 1`,
			request.TargetID, seriesID, request.SessionID, request.RequesterID).Scan(&targetSessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNoCounterpart
			}
			return r.mapper.MapError(err)
		}

		if err := deleteEnrollment(ctx, tx, r.mapper, request.RequesterID, request.SessionID); err != nil {
			return err
		}
		if err := deleteEnrollment(ctx, tx, r.mapper, request.TargetID, targetSessionID); err != nil {
			return err
		}
		if err := addEnrollment(ctx, tx, r.mapper, request.RequesterID, targetSessionID); err != nil {
			return err
		}
		if err := addEnrollment(ctx, tx, r.mapper, request.TargetID, request.SessionID); err != nil {
			return err
		}

		if err := markResolved(ctx, tx, r.mapper, id, persistence.SwapAccepted, respondedAt); err != nil {
			return err
		}

		exchange = persistence.SwapExchange{
			RequesterSessionID: request.SessionID,
			TargetSessionID:    targetSessionID,
			RespondedAt:        respondedAt.UTC(),
		}
		return nil
	})
	if err != nil {
		return persistence.SwapExchange{}, err
	}
	return exchange, nil
}

func markResolved(ctx context.Context, tx *sql.Tx, mapper *ErrorMapper, id string, status persistence.SwapStatus, respondedAt time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = ?, responded_at = ? WHERE id = ? AND status = 'PENDING'`,
		string(status), formatTime(respondedAt), id)
	if err != nil {
		return mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapper.MapError(err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM swap_requests WHERE id = ?`, id).Scan(&exists); err != nil {
		return mapper.MapError(err)
	}
	return persistence.ErrNotPending
}

func deleteEnrollment(ctx context.Context, tx *sql.Tx, mapper *ErrorMapper, userID, sessionID string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	if err != nil {
		return mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapper.MapError(err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s is not enrolled in %s", persistence.ErrStaleEnrollment, userID, sessionID)
	}
	return nil
}

func addEnrollment(ctx context.Context, tx *sql.Tx, mapper *ErrorMapper, userID, sessionID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO enrollments (user_id, session_id) VALUES (?, ?)`, userID, sessionID)
	if err == nil {
		return nil
	}
	mapped := mapper.MapError(err)
	if errors.Is(mapped, persistence.ErrDuplicate) {
		return fmt.Errorf("%w: %s is already enrolled in %s", persistence.ErrStaleEnrollment, userID, sessionID)
	}
	return mapped
}

func scanSwapRequest(row rowScanner) (persistence.SwapRequest, error) {
	var (
		request     persistence.SwapRequest
		status      string
		createdAt   string
		respondedAt sql.NullString
	)
	err := row.Scan(&request.ID, &request.SessionID, &request.RequesterID, &request.TargetID, &status, &createdAt, &respondedAt)
	if err != nil {
		return persistence.SwapRequest{}, err
	}
	request.Status = persistence.SwapStatus(status)
	if request.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.SwapRequest{}, err
	}
	if request.RespondedAt, err = parseNullTime("responded_at", respondedAt); err != nil {
		return persistence.SwapRequest{}, err
	}
	return request, nil
}

func scanSwapRequestView(rows *sql.Rows) (persistence.SwapRequestView, error) {
	var (
		view                                   persistence.SwapRequestView
		status, createdAt                      string
		respondedAt, description               sql.NullString
		sStart, sEnd, sCreated, sUpdated       string
		requesterRole, targetRole              string
		rCreated, rUpdated, tCreated, tUpdated string
	)
	err := rows.Scan(
		&view.ID, &view.SessionID, &view.RequesterID, &view.TargetID, &status, &createdAt, &respondedAt,
		&view.Session.ID, &view.Session.SeriesID, &view.Session.Title, &view.Session.SupervisorName,
		&view.Session.Location, &description, &sStart, &sEnd, &sCreated, &sUpdated,
		&view.Requester.ID, &view.Requester.FullName, &view.Requester.Email, &requesterRole, &rCreated, &rUpdated,
		&view.Target.ID, &view.Target.FullName, &view.Target.Email, &targetRole, &tCreated, &tUpdated,
	)
	if err != nil {
		return persistence.SwapRequestView{}, err
	}

	view.Status = persistence.SwapStatus(status)
	view.Session.Description = stringPtr(description)
	view.Requester.Role = persistence.Role(requesterRole)
	view.Target.Role = persistence.Role(targetRole)

	times := []struct {
		column string
		raw    string
		dst    *time.Time
	}{
		{"created_at", createdAt, &view.CreatedAt},
		{"start_time", sStart, &view.Session.Start},
		{"end_time", sEnd, &view.Session.End},
		{"session.created_at", sCreated, &view.Session.CreatedAt},
		{"session.updated_at", sUpdated, &view.Session.UpdatedAt},
		{"requester.created_at", rCreated, &view.Requester.CreatedAt},
		{"requester.updated_at", rUpdated, &view.Requester.UpdatedAt},
		{"target.created_at", tCreated, &view.Target.CreatedAt},
		{"target.updated_at", tUpdated, &view.Target.UpdatedAt},
	}
	for _, item := range times {
		ts, err := parseTime(item.column, item.raw)
		if err != nil {
			return persistence.SwapRequestView{}, err
		}
		*item.dst = ts
	}
	if view.RespondedAt, err = parseNullTime("responded_at", respondedAt); err != nil {
		return persistence.SwapRequestView{}, err
	}
	return view, nil
}
