package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/supervision-scheduler/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if got := nilErr.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for nil error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"title": "is required", "location": "is required"}}
	if got := withFields.Error(); got != "validation failed: location, title" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
	if !(&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	base.add("first", "ignored")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected first message to win, got %q", got)
	}

	base.merge(&ValidationError{FieldErrors: map[string]string{"second": "another"}})
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "not found", in: fmt.Errorf("get: %w", persistence.ErrNotFound), want: ErrNotFound},
		{name: "not pending", in: persistence.ErrNotPending, want: ErrAlreadyProcessed},
		{name: "no counterpart", in: persistence.ErrNoCounterpart, want: ErrNoMatchingSeriesSession},
		{name: "stale enrollment", in: persistence.ErrStaleEnrollment, want: ErrEnrollmentChanged},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapRepoError("op", tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	t.Run("unknown errors become persistence errors", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("disk I/O error")
		got := mapRepoError("create sessions", cause)
		var pErr *PersistenceError
		if !errors.As(got, &pErr) || pErr.Op != "create sessions" || !errors.Is(got, cause) {
			t.Fatalf("expected wrapped PersistenceError, got %v", got)
		}
	})

	t.Run("constraint errors keep their field", func(t *testing.T) {
		t.Parallel()
		cause := fmt.Errorf("insert: %w", persistence.NewConstraintError("target_id", "must differ from the requester"))
		var vErr *ValidationError
		if !errors.As(mapRepoError("create swap request", cause), &vErr) {
			t.Fatalf("expected ValidationError, got %v", cause)
		}
		if got := vErr.FieldErrors["target_id"]; got != "must differ from the requester" {
			t.Fatalf("expected target_id field error, got %v", vErr.FieldErrors)
		}
		if len(vErr.FieldErrors) != 1 {
			t.Fatalf("expected a single field error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("driver constraint errors are not blamed on a field", func(t *testing.T) {
		t.Parallel()
		cause := fmt.Errorf("%w: CHECK constraint failed", persistence.ErrConstraintViolation)
		var vErr *ValidationError
		if !errors.As(mapRepoError("update session", cause), &vErr) {
			t.Fatalf("expected ValidationError, got %v", cause)
		}
		if _, ok := vErr.FieldErrors["record"]; !ok {
			t.Fatalf("expected record field error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()
		if mapRepoError("op", nil) != nil {
			t.Fatalf("expected nil")
		}
	})
}
