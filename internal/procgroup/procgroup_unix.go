// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/livegate/internal/log"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalGroup(pid int, sig syscall.Signal) error {
	// Negative pid targets the group; we set Setpgid so PGID == PID.
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.EPERM) {
		// Not a group leader or group gone: address the single process.
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return ErrProcessNotFound
	}
	return err
}

func kill(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func alive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, syscall.EPERM)
}

func killGroup(pid int, grace, timeout time.Duration) error {
	logger := log.WithComponent("procgroup")

	logger.Debug().Int(log.FieldPID, pid).Msg("sending SIGTERM to process group")
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, ErrProcessNotFound) {
			return nil
		}
		return err
	}

	if waitGone(pid, grace) {
		return nil
	}

	logger.Warn().Int(log.FieldPID, pid).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	if err := signalGroup(pid, syscall.SIGKILL); err != nil && !errors.Is(err, ErrProcessNotFound) {
		return err
	}
	if waitGone(pid, timeout) {
		return nil
	}
	return ErrKillFailed
}

func waitGone(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if !alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
