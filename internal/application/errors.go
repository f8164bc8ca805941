package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/supervision-scheduler/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyProcessed is returned when a swap request has already left PENDING.
	ErrAlreadyProcessed = errors.New("application: swap request already processed")
	// ErrDuplicateRequest is returned when an identical swap request is still pending.
	ErrDuplicateRequest = errors.New("application: identical swap request is already pending")
	// ErrNoMatchingSeriesSession is returned when the target has no other session in the series to swap into.
	ErrNoMatchingSeriesSession = errors.New("application: target has no session in this series")
	// ErrEnrollmentChanged is returned when the enrollments a swap relies on changed after the request was made.
	ErrEnrollmentChanged = errors.New("application: enrollments changed since the swap was requested")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// PersistenceError reports a store failure during an operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("application: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// mapRepoError translates persistence sentinels into application errors.
// Anything unrecognised becomes a PersistenceError tagged with op.
func mapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrNotPending):
		return ErrAlreadyProcessed
	case errors.Is(err, persistence.ErrNoCounterpart):
		return ErrNoMatchingSeriesSession
	case errors.Is(err, persistence.ErrStaleEnrollment):
		return ErrEnrollmentChanged
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return newValidationError("student_ids", "referenced records no longer exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		var cErr *persistence.ConstraintError
		if errors.As(err, &cErr) {
			return newValidationError(cErr.Field, cErr.Reason)
		}
		return newValidationError("record", "violates a storage constraint")
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
