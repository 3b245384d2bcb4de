// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

func set(cmd *exec.Cmd) {
	// No process groups on Windows; Terminate falls back to killing the root.
}

// Kill terminates the root process. Signal granularity is unavailable here, so
// anything other than SIGTERM is treated as a hard kill.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
