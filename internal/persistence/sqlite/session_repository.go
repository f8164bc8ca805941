package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewSessionRepository creates a SQLite session repository.
func NewSessionRepository(pool *ConnectionPool, now func() time.Time) *SessionRepository {
	if now == nil {
		now = time.Now
	}
	return &SessionRepository{pool: pool, mapper: NewErrorMapper(), now: now}
}

const sessionColumns = `s.id, s.series_id, s.title, s.supervisor_name, s.location, s.description, s.start_time, s.end_time, s.created_at, s.updated_at`

// CreateSessions inserts every session and its roster in one transaction.
// If any row is rejected nothing from the batch is persisted.
func (r *SessionRepository) CreateSessions(ctx context.Context, sessions []persistence.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	for _, session := range sessions {
		if err := validateSession(session); err != nil {
			return err
		}
	}

	now := formatTime(r.now())
	return r.pool.WithWriteTransaction(ctx, func(tx *sql.Tx) error {
		insertSession, err := tx.PrepareContext(ctx, `
			INSERT INTO supervision_sessions (id, series_id, title, supervisor_name, location, description, start_time, end_time, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer insertSession.Close()

		for _, session := range sessions {
			_, err := insertSession.ExecContext(ctx,
				session.ID,
				session.SeriesID,
				session.Title,
				session.SupervisorName,
				session.Location,
				nullString(session.Description),
				formatTime(session.Start),
				formatTime(session.End),
				now,
				now,
			)
			if err != nil {
				return fmt.Errorf("insert session %s: %w", session.ID, r.mapper.MapError(err))
			}
			if err := insertEnrollments(ctx, tx, r.mapper, session.ID, session.StudentIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSession retrieves a session and its roster.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM supervision_sessions s WHERE s.id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, r.mapper.MapError(err)
	}

	rosters, err := loadRosters(ctx, r.pool.DB(), []string{session.ID})
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	session.StudentIDs = rosters[session.ID]
	return session, nil
}

// UpdateSession rewrites the session fields and replaces its roster in one transaction.
// Sibling sessions of the same series are not touched.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	return r.pool.WithWriteTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE supervision_sessions
			SET title = ?, supervisor_name = ?, location = ?, description = ?, start_time = ?, end_time = ?, updated_at = ?
			WHERE id = ?`,
			session.Title,
			session.SupervisorName,
			session.Location,
			nullString(session.Description),
			formatTime(session.Start),
			formatTime(session.End),
			formatTime(r.now()),
			session.ID,
		)
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

		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE session_id = ?`, session.ID); err != nil {
			return r.mapper.MapError(err)
		}
		return insertEnrollments(ctx, tx, r.mapper, session.ID, session.StudentIDs)
	})
}

// DeleteSession removes the session together with its enrollments and swap requests.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	return r.pool.WithWriteTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE session_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM swap_requests WHERE session_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM supervision_sessions WHERE id = ?`, id)
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
	})
}

// ListSessions returns sessions matching filter ordered by start time, each with its roster.
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	query, args := buildSessionQuery(filter)
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var (
		sessions []persistence.Session
		ids      []string
	)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		sessions = append(sessions, session)
		ids = append(ids, session.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	rosters, err := loadRosters(ctx, r.pool.DB(), ids)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	for i := range sessions {
		sessions[i].StudentIDs = rosters[sessions[i].ID]
	}
	return sessions, nil
}

func buildSessionQuery(filter persistence.SessionFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	query := `SELECT ` + sessionColumns + ` FROM supervision_sessions s`

	if filter.UserID != "" {
		query += ` JOIN enrollments e ON e.session_id = s.id AND e.user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.SeriesID != "" {
		conditions = append(conditions, `s.series_id = ?`)
		args = append(args, filter.SeriesID)
	}
	if filter.ExcludeID != "" {
		conditions = append(conditions, `s.id <> ?`)
		args = append(args, filter.ExcludeID)
	}
	if filter.StartsFrom != nil {
		conditions = append(conditions, `s.start_time >= ?`)
		args = append(args, formatTime(*filter.StartsFrom))
	}
	if filter.OverlapStart != nil && filter.OverlapEnd != nil {
		conditions = append(conditions, `s.start_time < ?`, `s.end_time > ?`)
		args = append(args, formatTime(*filter.OverlapEnd), formatTime(*filter.OverlapStart))
	}

	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY s.start_time ASC, s.id ASC`
	return query, args
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadRosters(ctx context.Context, db queryer, sessionIDs []string) (map[string][]string, error) {
	rosters := make(map[string][]string, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return rosters, nil
	}

	const chunk = 500
	for offset := 0; offset < len(sessionIDs); offset += chunk {
		end := min(offset+chunk, len(sessionIDs))
		batch := sessionIDs[offset:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := db.QueryContext(ctx,
			`SELECT session_id, user_id FROM enrollments WHERE session_id IN (`+placeholders(len(batch))+`) ORDER BY user_id ASC`,
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var sessionID, userID string
			if err := rows.Scan(&sessionID, &userID); err != nil {
				rows.Close()
				return nil, err
			}
			rosters[sessionID] = append(rosters[sessionID], userID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return rosters, nil
}

func insertEnrollments(ctx context.Context, tx *sql.Tx, mapper *ErrorMapper, sessionID string, userIDs []string) error {
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if _, err := tx.ExecContext(ctx, `INSERT INTO enrollments (user_id, session_id) VALUES (?, ?)`, userID, sessionID); err != nil {
			return fmt.Errorf("enroll %s in %s: %w", userID, sessionID, mapper.MapError(err))
		}
	}
	return nil
}

func validateSession(session persistence.Session) error {
	if session.ID == "" {
		return persistence.NewConstraintError("id", "is required")
	}
	if session.SeriesID == "" {
		return persistence.NewConstraintError("series_id", "is required")
	}
	if !session.Start.Before(session.End) {
		return persistence.NewConstraintError("ends_at", "must be after starts_at")
	}
	return nil
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                          persistence.Session
		description                      sql.NullString
		start, end, createdAt, updatedAt string
	)
	err := row.Scan(
		&session.ID,
		&session.SeriesID,
		&session.Title,
		&session.SupervisorName,
		&session.Location,
		&description,
		&start,
		&end,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Session{}, err
	}
	session.Description = stringPtr(description)

	if session.Start, err = parseTime("start_time", start); err != nil {
		return persistence.Session{}, err
	}
	if session.End, err = parseTime("end_time", end); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
