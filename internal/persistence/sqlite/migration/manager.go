package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager runs pending migrations in version order.
type Manager struct {
	scanner  FileScanner
	executor Executor
	logger   *slog.Logger
}

// NewManager wires a scanner and executor. A nil logger falls back to slog.Default.
func NewManager(scanner FileScanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// RunMigrations applies every pending migration. Execution stops at the first failure.
func (m *Manager) RunMigrations(ctx context.Context) error {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "schema version", "current_version", status.CurrentVersion, "pending", len(status.Pending))

	for i, migration := range status.Pending {
		logger := m.logger.With("version", migration.Version, "file", migration.FilePath)
		logger.InfoContext(ctx, "applying migration", "description", migration.Description, "position", i+1, "total", len(status.Pending))

		migrationStarted := time.Now()
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return NewMigrationError(migration.Version, migration.FilePath, "execute", fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
		elapsed := time.Since(migrationStarted)
		if err := m.executor.RecordMigration(ctx, migration, elapsed); err != nil {
			logger.ErrorContext(ctx, "recording migration failed", "error", err)
			return err
		}
		logger.InfoContext(ctx, "migration applied", "duration", elapsed)
	}

	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations complete", "applied", len(status.Pending), "duration", time.Since(started))
	}
	return nil
}

// Status reports the current version and the migrations not applied yet.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := m.scanner.ScanMigrations()
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, err
	}

	appliedByVersion := make(map[string]AppliedMigration, len(applied))
	for _, item := range applied {
		appliedByVersion[item.Version] = item
	}

	status := Status{Applied: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, migration := range available {
		record, ok := appliedByVersion[migration.Version]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if record.Checksum != "" && record.Checksum != migration.Checksum {
			return Status{}, NewMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return status, nil
}
