package application

import (
	"sync"
	"time"
)

// directoryCache holds the assignable-user listing for a short period so picker
// requests do not hit the store on every keystroke.
type directoryCache struct {
	mu        sync.RWMutex
	now       func() time.Time
	ttl       time.Duration
	users     []User
	expiresAt time.Time
	loaded    bool
}

func newDirectoryCache(ttl time.Duration, now func() time.Time) *directoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &directoryCache{now: now, ttl: ttl}
}

func (c *directoryCache) Get() ([]User, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || c.now().After(c.expiresAt) {
		return nil, false
	}
	return cloneUsers(c.users), true
}

func (c *directoryCache) Store(users []User) {
	if c == nil {
		return
	}
	cloned := cloneUsers(users)
	c.mu.Lock()
	c.users = cloned
	c.expiresAt = c.now().Add(c.ttl)
	c.loaded = true
	c.mu.Unlock()
}

func (c *directoryCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.users = nil
	c.loaded = false
	c.mu.Unlock()
}

func cloneUsers(users []User) []User {
	if len(users) == 0 {
		return nil
	}
	out := make([]User, len(users))
	copy(out, users)
	return out
}
