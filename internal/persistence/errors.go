package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects the write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint fails.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrNotPending is returned when a swap request is no longer pending.
	ErrNotPending = errors.New("persistence: swap request is not pending")
	// ErrNoCounterpart is returned when the target has no other session in the series.
	ErrNoCounterpart = errors.New("persistence: no counterpart session in series")
	// ErrStaleEnrollment is returned when an enrollment expected by an exchange is gone.
	ErrStaleEnrollment = errors.New("persistence: enrollment changed")
)

// ConstraintError names the field a rejected write violated. It matches
// ErrConstraintViolation under errors.Is.
type ConstraintError struct {
	Field  string
	Reason string
}

// NewConstraintError reports that field failed with reason.
func NewConstraintError(field, reason string) *ConstraintError {
	return &ConstraintError{Field: field, Reason: reason}
}

func (e *ConstraintError) Error() string {
	return ErrConstraintViolation.Error() + ": " + e.Field + " " + e.Reason
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}
