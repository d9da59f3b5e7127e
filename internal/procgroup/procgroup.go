// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns encoders as process group leaders and delivers
// signals to the whole group.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)

// Controller probes and kills processes by pid. Supervisors depend on it
// instead of the syscalls so tests can substitute their own.
type Controller interface {
	Alive(pid int) bool
	Kill(pid int) error
}

// OS is the Controller backed by real signals.
type OS struct{}

func (OS) Alive(pid int) bool { return Alive(pid) }
func (OS) Kill(pid int) error { return Kill(pid) }

// Set configures the command to start in a new process group.
// Mandatory for KillGroup to function as a group reaper.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill sends SIGKILL to the process group led by pid, falling back to the
// single process. A process that is already gone yields ErrProcessNotFound.
func Kill(pid int) error {
	if pid <= 0 {
		return ErrProcessNotFound
	}
	return kill(pid)
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

// KillGroup attempts to terminate an entire process group tree.
// Standard lifecycle: SIGTERM, wait grace, SIGKILL, wait timeout.
func KillGroup(pid int, grace, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	return killGroup(pid, grace, timeout)
}
