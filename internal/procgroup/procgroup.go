// SPDX-License-Identifier: MIT

// Package procgroup spawns child processes in their own process group so the
// whole tree can be reaped when a grab exceeds its deadline.
package procgroup

import (
	"os/exec"
)

// Set configures the command to start in a new process group.
// Mandatory for Kill/Terminate to function as group reapers.
func Set(cmd *exec.Cmd) {
	set(cmd)
}
