package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records notifications in the application log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifySwapRequestCreated(ctx context.Context, event SwapRequestCreated) error {
	n.logger.InfoContext(ctx, "swap request created",
		"request_id", event.RequestID,
		"target_email", event.TargetEmail,
		"requester_name", event.RequesterName,
		"session_title", event.SessionTitle,
	)
	return nil
}
