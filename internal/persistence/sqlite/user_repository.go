package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewUserRepository creates a SQLite user repository.
func NewUserRepository(pool *ConnectionPool, now func() time.Time) *UserRepository {
	if now == nil {
		now = time.Now
	}
	return &UserRepository{pool: pool, mapper: NewErrorMapper(), now: now}
}

// UpsertUser inserts the user or refreshes name, email and role of an existing one.
func (r *UserRepository) UpsertUser(ctx context.Context, user persistence.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return persistence.NewConstraintError("id", "is required")
	}
	now := formatTime(r.now())
	const query = `
		INSERT INTO users (id, full_name, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			role = excluded.role,
			updated_at = excluded.updated_at`

	_, err := r.pool.DB().ExecContext(ctx, query,
		user.ID,
		strings.TrimSpace(user.FullName),
		normalizeEmail(user.Email),
		string(user.Role),
		now,
		now,
	)
	return r.mapper.MapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	const query = `SELECT id, full_name, email, role, created_at, updated_at FROM users WHERE id = ?`
	user, err := scanUser(r.pool.DB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// ListUsers returns users ordered by name, optionally restricted to roles.
func (r *UserRepository) ListUsers(ctx context.Context, roles ...persistence.Role) ([]persistence.User, error) {
	query := `SELECT id, full_name, email, role, created_at, updated_at FROM users`
	args := make([]any, 0, len(roles))
	if len(roles) > 0 {
		query += ` WHERE role IN (` + placeholders(len(roles)) + `)`
		for _, role := range roles {
			args = append(args, string(role))
		}
	}
	query += ` ORDER BY full_name ASC, id ASC`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		users = append(users, user)
	}
	return users, r.mapper.MapError(rows.Err())
}

// MissingUserIDs returns the subset of ids that do not exist, preserving input order.
func (r *UserRepository) MissingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT id FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.mapper.MapError(err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		role                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&user.ID, &user.FullName, &user.Email, &role, &createdAt, &updatedAt); err != nil {
		return persistence.User{}, err
	}
	user.Role = persistence.Role(role)

	var err error
	if user.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
