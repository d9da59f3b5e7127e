// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os"
	"os/exec"
	"time"
)

// Process groups are not used on Windows.
func set(cmd *exec.Cmd) {}

func kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessNotFound
	}
	return proc.Kill()
}

func alive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}

func killGroup(pid int, grace, timeout time.Duration) error {
	if err := kill(pid); err != nil && err != ErrProcessNotFound {
		return err
	}
	return nil
}
