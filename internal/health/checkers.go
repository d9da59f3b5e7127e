// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Pinger is implemented by the shared store client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker reports whether the shared store answers.
type RedisChecker struct {
	client  Pinger
	timeout time.Duration
}

func NewRedisChecker(client Pinger) *RedisChecker {
	return &RedisChecker{client: client, timeout: 2 * time.Second}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// WritableDirChecker verifies a directory exists and accepts new files.
type WritableDirChecker struct {
	name string
	path string
}

func NewWritableDirChecker(name, path string) *WritableDirChecker {
	return &WritableDirChecker{name: name, path: path}
}

func (c *WritableDirChecker) Name() string { return c.name }

func (c *WritableDirChecker) Check(_ context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".write_test")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// BinaryChecker verifies an executable can be resolved. A missing binary
// only degrades the gateway: archiving to object storage still works.
type BinaryChecker struct {
	name string
	bin  string
}

func NewBinaryChecker(name, bin string) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin}
}

func (c *BinaryChecker) Name() string { return c.name }

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: c.bin}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// FuncChecker adapts a function into a Checker.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
