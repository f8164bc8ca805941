package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/example/supervision-scheduler/internal/persistence"
)

// AvailabilityRepository implements persistence.AvailabilityRepository using SQLite.
type AvailabilityRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewAvailabilityRepository creates a SQLite availability repository.
func NewAvailabilityRepository(pool *ConnectionPool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateBlock stores a new availability block.
func (r *AvailabilityRepository) CreateBlock(ctx context.Context, block persistence.AvailabilityBlock) error {
	if block.ID == "" {
		return persistence.NewConstraintError("id", "is required")
	}
	if !block.Start.Before(block.End) {
		return persistence.NewConstraintError("ends_at", "must be after starts_at")
	}
	const query = `
		INSERT INTO availability_blocks (id, kind, user_id, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.pool.DB().ExecContext(ctx, query,
		block.ID,
		string(block.Kind),
		nullString(block.UserID),
		formatTime(block.Start),
		formatTime(block.End),
		formatTime(block.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBlock retrieves a block by ID.
func (r *AvailabilityRepository) GetBlock(ctx context.Context, id string) (persistence.AvailabilityBlock, error) {
	const query = `SELECT id, kind, user_id, start_time, end_time, created_at FROM availability_blocks WHERE id = ?`
	block, err := scanBlock(r.pool.DB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.AvailabilityBlock{}, persistence.ErrNotFound
		}
		return persistence.AvailabilityBlock{}, r.mapper.MapError(err)
	}
	return block, nil
}

// DeleteBlock removes a block by ID.
func (r *AvailabilityRepository) DeleteBlock(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM availability_blocks WHERE id = ?`, id)
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

// ListBlocks returns blocks matching filter ordered by start time.
func (r *AvailabilityRepository) ListBlocks(ctx context.Context, filter persistence.BlockFilter) ([]persistence.AvailabilityBlock, error) {
	query, args := buildBlockQuery(filter)
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var blocks []persistence.AvailabilityBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		blocks = append(blocks, block)
	}
	return blocks, r.mapper.MapError(rows.Err())
}

func buildBlockQuery(filter persistence.BlockFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	switch {
	case filter.OnlyGlobal:
		conditions = append(conditions, `kind = 'GLOBAL'`)
	case len(filter.UserIDs) > 0:
		owner := `user_id IN (` + placeholders(len(filter.UserIDs)) + `)`
		for _, id := range filter.UserIDs {
			args = append(args, id)
		}
		if filter.IncludeGlobal {
			owner = `(` + owner + ` OR kind = 'GLOBAL')`
		}
		conditions = append(conditions, owner)
	case !filter.IncludeGlobal:
		conditions = append(conditions, `kind = 'PERSONAL'`)
	}

	if filter.To != nil {
		conditions = append(conditions, `start_time < ?`)
		args = append(args, formatTime(*filter.To))
	}
	if filter.From != nil {
		conditions = append(conditions, `end_time > ?`)
		args = append(args, formatTime(*filter.From))
	}

	query := `SELECT id, kind, user_id, start_time, end_time, created_at FROM availability_blocks`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY start_time ASC, id ASC`
	return query, args
}

func scanBlock(row rowScanner) (persistence.AvailabilityBlock, error) {
	var (
		block                 persistence.AvailabilityBlock
		kind                  string
		userID                sql.NullString
		start, end, createdAt string
	)
	if err := row.Scan(&block.ID, &kind, &userID, &start, &end, &createdAt); err != nil {
		return persistence.AvailabilityBlock{}, err
	}
	block.Kind = persistence.BlockKind(kind)
	block.UserID = stringPtr(userID)

	var err error
	if block.Start, err = parseTime("start_time", start); err != nil {
		return persistence.AvailabilityBlock{}, err
	}
	if block.End, err = parseTime("end_time", end); err != nil {
		return persistence.AvailabilityBlock{}, err
	}
	if block.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.AvailabilityBlock{}, err
	}
	return block, nil
}
