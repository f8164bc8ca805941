// Package notify delivers swap request notifications to students.
package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a notifier missing required settings.
var ErrNotConfigured = errors.New("notify: notifier not configured")

// SwapRequestCreated is emitted once a swap request has been persisted.
type SwapRequestCreated struct {
	RequestID     string
	TargetEmail   string
	TargetName    string
	RequesterName string
	SessionTitle  string
}

// Notifier delivers a swap request notification.
type Notifier interface {
	NotifySwapRequestCreated(ctx context.Context, event SwapRequestCreated) error
}
