//go:build windows

package host

import (
	"context"

	"golang.org/x/sys/windows"
)

// waitParent waits on the process handle. It reports true once the process
// is gone and false when ctx ends first.
func waitParent(ctx context.Context, pid int) bool {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		// The process no longer exists.
		return true
	}
	defer windows.CloseHandle(h)

	timeout := uint32(ParentPollInterval.Milliseconds())
	for {
		ev, err := windows.WaitForSingleObject(h, timeout)
		if err != nil {
			return false
		}
		if ev == windows.WAIT_OBJECT_0 {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
}
