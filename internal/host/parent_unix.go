//go:build unix

package host

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// waitParent polls pid with signal 0. It reports true once the process is
// gone and false when ctx ends first.
func waitParent(ctx context.Context, pid int) bool {
	ticker := time.NewTicker(ParentPollInterval)
	defer ticker.Stop()
	for {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
