package testfixtures

import (
	"sync"
	"time"
)

// Clock is a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock set to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the clock's current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for injection into services and repositories.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

// AdvanceWeeks moves the clock forward by n calendar weeks, keeping the wall
// clock time in the clock's location across DST changes.
func (c *Clock) AdvanceWeeks(n int) time.Time {
	c.mu.Lock()
	c.current = c.current.AddDate(0, 0, 7*n)
	updated := c.current
	c.mu.Unlock()
	return updated
}
