// SPDX-License-Identifier: MIT

package fetch

import (
	"fmt"
	"time"
)

// ValidationError reports a malformed or incomplete request. No side effects
// have occurred when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid fetch request: " + e.Reason
}

// SetupError reports a tool checkout or dependency install failure. Transient;
// the caller may retry.
type SetupError struct {
	Step string // "clone" or "install"
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("tool setup failed (%s): %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// WorkspaceError reports a workspace allocation or cleanup failure.
type WorkspaceError struct {
	Op  string
	Err error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s failed: %v", e.Op, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// ExecutionError reports a non-zero exit of the grabber. Output carries the
// tail of the combined process output for diagnostics.
type ExecutionError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("grabber exited with code %d: %v", e.ExitCode, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports that the grabber exceeded the overall wall-clock
// ceiling and was forcibly terminated.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("grabber exceeded deadline of %s", e.Limit)
}

// ArtifactMissingError reports that the grabber signalled success but produced
// no usable output file. Always a hard failure.
type ArtifactMissingError struct {
	Path   string
	Reason string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("artifact missing at %s: %s", e.Path, e.Reason)
}
