package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSendTimeout = 15 * time.Second

// Dispatcher sends notifications in the background so callers never wait on delivery.
// Failures are logged and dropped.
type Dispatcher struct {
	next    Notifier
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wraps next with fire-and-forget delivery.
func NewDispatcher(next Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{next: next, logger: logger, timeout: defaultSendTimeout}
}

// NotifySwapRequestCreated schedules delivery and returns immediately.
func (d *Dispatcher) NotifySwapRequestCreated(ctx context.Context, event SwapRequestCreated) error {
	if d == nil || d.next == nil {
		return nil
	}
	// Delivery outlives the request that triggered it.
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		logger := d.logger.With("request_id", event.RequestID, "target_email", event.TargetEmail)
		if err := d.next.NotifySwapRequestCreated(sendCtx, event); err != nil {
			logger.WarnContext(sendCtx, "swap request notification failed", "error", err)
			return
		}
		logger.DebugContext(sendCtx, "swap request notification sent")
	}()
	return nil
}

// Wait blocks until every scheduled delivery has finished or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
