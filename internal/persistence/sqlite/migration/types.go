package migration

import (
	"context"
	"time"
)

// Migration is one versioned SQL file.
type Migration struct {
	Version     string
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises applied and pending migrations.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// FileScanner discovers migration files.
type FileScanner interface {
	ScanMigrations() ([]Migration, error)
	ValidateFileName(name string) error
}

// Executor applies migrations and tracks versions.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	ExecuteMigration(ctx context.Context, migration Migration) error
	RecordMigration(ctx context.Context, migration Migration, executionTime time.Duration) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}
