//go:build !linux

package grpc

import (
	"os/exec"
)

// applyProcessSandbox is a no-op; go-plugin still kills plugin processes
// when the host shuts down cleanly.
func applyProcessSandbox(*exec.Cmd) {}
