package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// ConnectionPool wraps the database handle with transaction helpers.
type ConnectionPool struct {
	db     *sql.DB
	config Config
	retry  *RetryHelper
}

// NewConnectionPool opens and pings a SQLite database.
func NewConnectionPool(ctx context.Context, config Config) (*ConnectionPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}

	return &ConnectionPool{db: db, config: config, retry: NewRetryHelper(DefaultRetryConfig())}, nil
}

// DB returns the underlying database handle.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Close closes the pool.
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// TransactionFunc is executed inside WithTransaction.
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction runs fn in a transaction, committing on success and rolling
// back when fn returns an error or panics.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

// WithWriteTransaction is WithTransaction retried on lock contention.
// fn must be safe to run more than once.
func (cp *ConnectionPool) WithWriteTransaction(ctx context.Context, fn TransactionFunc) error {
	if cp.retry == nil {
		return cp.WithTransaction(ctx, fn)
	}
	return cp.retry.WithRetry(ctx, func() error {
		return cp.WithTransaction(ctx, fn)
	})
}

// ErrorMapper translates driver errors into persistence sentinels.
type ErrorMapper struct{}

// NewErrorMapper creates an ErrorMapper.
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError wraps err with the matching persistence sentinel, if any.
func (em *ErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case containsAny(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case containsAny(msg, "CHECK constraint failed", "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}

func containsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// RetryConfig configures retries for lock contention.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry policy used by the repositories.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryHelper retries operations that failed on SQLITE_BUSY or SQLITE_LOCKED.
type RetryHelper struct {
	config RetryConfig
}

// NewRetryHelper creates a RetryHelper.
func NewRetryHelper(config RetryConfig) *RetryHelper {
	return &RetryHelper{config: config}
}

// WithRetry runs fn until it succeeds, fails with a non-retryable error, or retries run out.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := rh.config.InitialDelay

	for attempt := 0; attempt <= rh.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * rh.config.BackoffFactor)
			if delay > rh.config.MaxDelay {
				delay = rh.config.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil || !isRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("sqlite: gave up after %d retries: %w", rh.config.MaxRetries, lastErr)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "database is locked", "database table is locked", "SQLITE_BUSY", "SQLITE_LOCKED")
}
