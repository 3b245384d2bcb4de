// SPDX-License-Identifier: MIT

package fetch

import "context"

// GrabSpec is the fully resolved invocation contract handed to an Invoker.
// Exactly one of Site or ChannelsPath is set; the orchestrator guarantees this.
type GrabSpec struct {
	ToolDir      string // grabber checkout, used as working directory
	Site         string
	ChannelsPath string
	OutputPath   string

	Days           int
	Lang           string
	MaxConnections int
	TimeoutMS      int
	DelayMS        int
	Gzip           bool
}

// Invoker runs the grabber to completion. Implementations map a non-zero exit
// to *ExecutionError and a breached wall-clock ceiling to *TimeoutError; exit
// code zero is the sole success signal.
type Invoker interface {
	Grab(ctx context.Context, spec GrabSpec) error
}

// ContainerSpec is the invocation contract of the container variant. The
// channel-list document is mounted read-only at a fixed in-container path and
// OutputDir is mounted read-write; tunables travel as environment variables.
type ContainerSpec struct {
	ChannelsPath string
	OutputDir    string

	Days           int
	MaxConnections int
	TimeoutMS      int
	DelayMS        int
	Gzip           bool
}

// ContainerInvoker runs the containerized grabber to completion, with the same
// error mapping contract as Invoker.
type ContainerInvoker interface {
	Run(ctx context.Context, spec ContainerSpec) error
}
