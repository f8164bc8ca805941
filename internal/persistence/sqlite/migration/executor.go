package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteExecutor applies migrations to a SQLite database.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates an executor bound to db.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations if needed.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// ExecuteMigration runs every statement of migration inside one transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, migration Migration) (err error) {
	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return NewMigrationError(migration.Version, migration.FilePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile))
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewMigrationError(migration.Version, migration.FilePath, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return NewMigrationError(migration.Version, migration.FilePath, fmt.Sprintf("execute statement %d", i+1), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return NewMigrationError(migration.Version, migration.FilePath, "commit", err)
	}
	return nil
}

// RecordMigration stores a successfully applied migration.
func (e *SQLiteExecutor) RecordMigration(ctx context.Context, migration Migration, executionTime time.Duration) error {
	const insert = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	_, err := e.db.ExecContext(ctx, insert,
		migration.Version,
		e.now().UTC().Format(time.RFC3339),
		migration.Checksum,
		executionTime.Milliseconds(),
	)
	if err != nil {
		return NewMigrationError(migration.Version, migration.FilePath, "record migration", err)
	}
	return nil
}

// AppliedMigrations lists recorded migrations in version order.
func (e *SQLiteExecutor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	const query = `
		SELECT version, applied_at, checksum, execution_time_ms
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			item        AppliedMigration
			appliedAt   string
			executionMs int64
		)
		if err := rows.Scan(&item.Version, &appliedAt, &item.Checksum, &executionMs); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			item.AppliedAt = ts
		}
		item.ExecutionTime = time.Duration(executionMs) * time.Millisecond
		applied = append(applied, item)
	}
	return applied, rows.Err()
}
