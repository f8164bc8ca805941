package scheduler

import (
	"errors"
	"time"
)

// ErrInvalidInterval indicates an interval whose start is not strictly before its end.
var ErrInvalidInterval = errors.New("scheduler: interval start must be before end")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval constructs an Interval, rejecting empty and inverted ranges.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Valid reports whether the interval satisfies Start < End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether a and b share at least one instant.
// Touching intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}
