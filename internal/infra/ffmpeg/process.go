// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg launches and observes encoder subprocesses.
package ffmpeg

import (
	"context"
	"time"
)

// Spec describes one encoder invocation.
type Spec struct {
	Args []string
	Dir  string // optional working directory
}

// Exit is the outcome of a finished process. Code is -1 when the process was
// terminated by a signal or never produced a status.
type Exit struct {
	Code int
	Err  error
}

// Process is a running encoder. Output arrives line by line on Stdout and
// Stderr; both channels close before Done. Lines are dropped rather than
// blocking the encoder when a consumer falls behind.
type Process interface {
	PID() int
	Stdout() <-chan string
	Stderr() <-chan string
	// Done closes once the process has exited and its output is drained.
	Done() <-chan struct{}
	// Exit is valid after Done is closed.
	Exit() Exit
	// Diagnostics returns the most recent stderr lines.
	Diagnostics() []string
	// Stop terminates the process group, SIGTERM first.
	Stop(grace, timeout time.Duration) error
}

// Launcher starts encoder processes.
type Launcher interface {
	Start(ctx context.Context, spec Spec) (Process, error)
}
