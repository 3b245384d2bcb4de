// SPDX-License-Identifier: MIT

// Package runner invokes the grabber toolkit as a local subprocess.
package runner

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"

	"github.com/ManuGH/epgd/internal/fetch"
	xglog "github.com/ManuGH/epgd/internal/log"
	"github.com/ManuGH/epgd/internal/procgroup"
)

// commandContext is swapped out by tests to stub the grabber binary.
var commandContext = exec.CommandContext

// defaultGrace is how long a SIGTERM'd grabber gets before SIGKILL.
const defaultGrace = 10 * time.Second

// Option configures the CLI runner.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithGrace overrides the SIGTERM grace period.
func WithGrace(grace time.Duration) Option {
	return func(c *CLI) {
		if grace > 0 {
			c.grace = grace
		}
	}
}

// CLI wraps the grabber's npm entry point.
type CLI struct {
	binary string
	grace  time.Duration
}

// NewCLI constructs a runner using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "npm", grace: defaultGrace}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Grab runs the grabber to completion inside the tool checkout. The deadline
// on ctx is the overall wall-clock ceiling, independent of the grabber's own
// per-request timeout; on breach the whole process group is terminated.
func (c *CLI) Grab(ctx context.Context, spec fetch.GrabSpec) error {
	logger := xglog.WithComponentFromContext(ctx, "runner")

	var ceiling time.Duration
	if dl, ok := ctx.Deadline(); ok {
		ceiling = time.Until(dl).Round(time.Millisecond)
	}

	args := buildArgs(spec)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Dir = spec.ToolDir

	var out tailBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	procgroup.Set(cmd)

	logger.Info().
		Str("event", "grab.start").
		Str("site", spec.Site).
		Str("channels", spec.ChannelsPath).
		Str("output", spec.OutputPath).
		Msg("invoking grabber")

	if err := cmd.Start(); err != nil {
		return &fetch.ExecutionError{ExitCode: -1, Output: out.String(), Err: err}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err == nil {
			logger.Info().Str("event", "grab.success").Msg("grabber finished")
			return nil
		}
		return execError(err, out.String())

	case <-ctx.Done():
		// Ceiling breached or caller cancelled: reap the whole group, then
		// drain the wait result.
		_ = procgroup.Terminate(cmd, waitCh, c.grace)

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn().Str("event", "grab.timeout").Msg("grabber exceeded wall-clock ceiling")
			return &fetch.TimeoutError{Limit: ceiling}
		}
		logger.Warn().Str("event", "grab.cancelled").Msg("grab cancelled by caller")
		return ctx.Err()
	}
}

// buildArgs translates the spec 1:1 onto the grabber's CLI contract.
func buildArgs(spec fetch.GrabSpec) []string {
	args := []string{"run", "grab", "---"}

	if spec.Site != "" {
		args = append(args, "--site", spec.Site)
	} else {
		args = append(args, "--channels", spec.ChannelsPath)
	}

	args = append(args, "--output", spec.OutputPath)

	if spec.Days > 0 {
		args = append(args, "--days", strconv.Itoa(spec.Days))
	}
	if spec.Lang != "" {
		args = append(args, "--lang", spec.Lang)
	}

	args = append(args,
		"--maxConnections", strconv.Itoa(spec.MaxConnections),
		"--timeout", strconv.Itoa(spec.TimeoutMS),
		"--delay", strconv.Itoa(spec.DelayMS),
	)

	if spec.Gzip {
		args = append(args, "--gzip")
	}
	return args
}

func execError(err error, output string) error {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &fetch.ExecutionError{ExitCode: code, Output: output, Err: err}
}

var _ fetch.Invoker = (*CLI)(nil)
