package host

import (
	"context"
	"log/slog"
	"time"
)

// ParentPollInterval is how often the parent process is checked on
// platforms without a wait primitive.
var ParentPollInterval = time.Second

// WatchParent calls onExit once the process pid has exited. It returns
// immediately; watching stops when ctx is done.
func WatchParent(ctx context.Context, pid int, logger *slog.Logger, onExit func()) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		if waitParent(ctx, pid) {
			logger.Warn("Parent process exited, shutting down", "pid", pid)
			onExit()
		}
	}()
}
