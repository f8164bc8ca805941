package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed indicates that a migration execution failed.
	ErrMigrationFailed = errors.New("migration execution failed")
	// ErrInvalidMigrationFile indicates a malformed migration file.
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	// ErrInvalidVersion indicates a non-numeric version prefix.
	ErrInvalidVersion = errors.New("invalid migration version")
	// ErrDuplicateVersion indicates two files share a version.
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrChecksumMismatch indicates an applied migration file was edited afterwards.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// MigrationError wraps a failure with the migration it concerns.
type MigrationError struct {
	Version   string
	FilePath  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.FilePath, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration (%s): %s: %v", e.FilePath, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a MigrationError.
func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, FilePath: filePath, Operation: operation, Err: err}
}
