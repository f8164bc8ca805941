package recurrence

import (
	"errors"
	"time"
)

// MaxOccurrences bounds a single expansion regardless of the requested end date.
const MaxOccurrences = 52

// ErrInvalidDuration indicates the session duration is not positive.
var ErrInvalidDuration = errors.New("recurrence: duration must be positive")

// ErrMissingStart indicates the request carries a zero start instant.
var ErrMissingStart = errors.New("recurrence: start is required")

// ErrUntilBeforeStart indicates the repeat-until date precedes the first occurrence date.
var ErrUntilBeforeStart = errors.New("recurrence: repeat-until date precedes start date")

// Request describes a weekly series to expand.
type Request struct {
	Start    time.Time
	Duration time.Duration
	// RepeatUntil is a calendar date; its year, month and day are read as given
	// and any occurrence starting on or before that day in the engine location
	// is emitted. Nil means a single occurrence.
	RepeatUntil *time.Time
}

// Occurrence is one concrete session window produced by an expansion.
type Occurrence struct {
	Index int
	Start time.Time
	End   time.Time
}

// Engine expands weekly requests into occurrences.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that evaluates calendar dates in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the zone used for calendar arithmetic.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Expand produces the weekly occurrences for req.
//
// Starting at req.Start, an occurrence [start, start+duration) is emitted and
// start advances by one calendar week, preserving wall-clock time across DST
// transitions. Expansion stops once start falls after the repeat-until day or
// after MaxOccurrences have been emitted.
func (e *Engine) Expand(req Request) ([]Occurrence, error) {
	if req.Start.IsZero() {
		return nil, ErrMissingStart
	}
	if req.Duration <= 0 {
		return nil, ErrInvalidDuration
	}

	loc := e.Location()
	start := req.Start.In(loc)
	limit := endOfDay(start, loc)
	if req.RepeatUntil != nil {
		limit = endOfDay(*req.RepeatUntil, loc)
		if limit.Before(start) {
			return nil, ErrUntilBeforeStart
		}
	}

	occurrences := make([]Occurrence, 0, 4)
	for current := start; !current.After(limit) && len(occurrences) < MaxOccurrences; current = current.AddDate(0, 0, 7) {
		occurrences = append(occurrences, Occurrence{
			Index: len(occurrences),
			Start: current,
			End:   current.Add(req.Duration),
		})
	}
	return occurrences, nil
}

// DayBounds returns the [start, end) instants of the calendar day containing t in the engine location.
func (e *Engine) DayBounds(t time.Time) (time.Time, time.Time) {
	loc := e.Location()
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
