package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/supervision-scheduler/internal/persistence"
)

// EnrollmentRepository implements persistence.EnrollmentRepository using SQLite.
type EnrollmentRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewEnrollmentRepository creates a SQLite enrollment repository.
func NewEnrollmentRepository(pool *ConnectionPool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool, mapper: NewErrorMapper()}
}

// AddEnrollment enrolls a user in a session. Enrolling twice yields ErrDuplicate.
func (r *EnrollmentRepository) AddEnrollment(ctx context.Context, enrollment persistence.Enrollment) error {
	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO enrollments (user_id, session_id) VALUES (?, ?)`,
		enrollment.UserID, enrollment.SessionID)
	return r.mapper.MapError(err)
}

// RemoveEnrollment deletes one enrollment; ErrNotFound if it did not exist.
func (r *EnrollmentRepository) RemoveEnrollment(ctx context.Context, enrollment persistence.Enrollment) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM enrollments WHERE user_id = ? AND session_id = ?`,
		enrollment.UserID, enrollment.SessionID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return r.mapper.MapError(err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ReplaceEnrollments sets the roster of a session to exactly userIDs.
func (r *EnrollmentRepository) ReplaceEnrollments(ctx context.Context, sessionID string, userIDs []string) error {
	return r.pool.WithWriteTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM supervision_sessions WHERE id = ?`, sessionID).Scan(&exists)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE session_id = ?`, sessionID); err != nil {
			return r.mapper.MapError(err)
		}
		return insertEnrollments(ctx, tx, r.mapper, sessionID, userIDs)
	})
}

// ListEnrollmentsByUser returns the user's enrollments ordered by session start.
func (r *EnrollmentRepository) ListEnrollmentsByUser(ctx context.Context, userID string) ([]persistence.Enrollment, error) {
	return r.list(ctx, `
		SELECT e.user_id, e.session_id
		FROM enrollments e
		JOIN supervision_sessions s ON s.id = e.session_id
		WHERE e.user_id = ?
		ORDER BY s.start_time ASC`, userID)
}

// ListEnrollmentsBySession returns the session's roster ordered by user id.
func (r *EnrollmentRepository) ListEnrollmentsBySession(ctx context.Context, sessionID string) ([]persistence.Enrollment, error) {
	return r.list(ctx, `SELECT user_id, session_id FROM enrollments WHERE session_id = ? ORDER BY user_id ASC`, sessionID)
}

func (r *EnrollmentRepository) list(ctx context.Context, query string, arg string) ([]persistence.Enrollment, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var enrollments []persistence.Enrollment
	for rows.Next() {
		var e persistence.Enrollment
		if err := rows.Scan(&e.UserID, &e.SessionID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, r.mapper.MapError(rows.Err())
}
