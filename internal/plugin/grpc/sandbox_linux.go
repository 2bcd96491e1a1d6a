//go:build linux

package grpc

import (
	"os/exec"
	"syscall"
)

// applyProcessSandbox ties the plugin process to the host's lifetime.
func applyProcessSandbox(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Plugin dies when host dies, no orphaned processes.
		Pdeathsig: syscall.SIGKILL,
	}
}
