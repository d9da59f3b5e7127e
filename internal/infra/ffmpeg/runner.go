// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/procgroup"
	"github.com/rs/zerolog"
)

var _ Launcher = (*Executor)(nil)

const lineBuffer = 64

// Executor starts real encoder binaries.
type Executor struct {
	BinaryPath string
	Logger     zerolog.Logger
}

func NewExecutor(binaryPath string, logger zerolog.Logger) *Executor {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Executor{
		BinaryPath: binaryPath,
		Logger:     logger,
	}
}

// Start spawns the binary in its own process group. Cancelling ctx kills the
// whole group.
func (e *Executor) Start(ctx context.Context, spec Spec) (Process, error) {
	cmd := exec.CommandContext(ctx, e.BinaryPath, spec.Args...)
	cmd.Dir = spec.Dir
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		err := procgroup.Kill(cmd.Process.Pid)
		if errors.Is(err, procgroup.ErrProcessNotFound) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec start failed: %w", err)
	}

	h := &handle{
		cmd:    cmd,
		stdout: make(chan string, lineBuffer),
		stderr: make(chan string, lineBuffer),
		done:   make(chan struct{}),
		ring:   NewRingBuffer(100),
	}
	e.Logger.Debug().
		Int(log.FieldPID, cmd.Process.Pid).
		Str("cmd", e.BinaryPath+" "+strings.Join(spec.Args, " ")).
		Msg("encoder started")

	go h.monitor(stdout, stderr)
	return h, nil
}

type handle struct {
	cmd    *exec.Cmd
	stdout chan string
	stderr chan string
	done   chan struct{}
	ring   *RingBuffer

	mu   sync.Mutex
	exit Exit
}

func (h *handle) PID() int              { return h.cmd.Process.Pid }
func (h *handle) Stdout() <-chan string { return h.stdout }
func (h *handle) Stderr() <-chan string { return h.stderr }
func (h *handle) Done() <-chan struct{} { return h.done }
func (h *handle) Diagnostics() []string { return h.ring.GetAll() }

func (h *handle) Exit() Exit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

func (h *handle) Stop(grace, timeout time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	return procgroup.KillGroup(h.PID(), grace, timeout)
}

func (h *handle) monitor(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scan(stdout, h.stdout, nil)
	}()
	go func() {
		defer wg.Done()
		scan(stderr, h.stderr, h.ring)
	}()
	wg.Wait()
	close(h.stdout)
	close(h.stderr)

	// Pipes must be drained before Wait closes them.
	err := h.cmd.Wait()
	exit := Exit{Code: -1, Err: err}
	if h.cmd.ProcessState != nil {
		exit.Code = h.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero status is reported through Code alone.
		exit.Err = nil
	}

	h.mu.Lock()
	h.exit = exit
	h.mu.Unlock()
	close(h.done)
}

func scan(r io.Reader, out chan<- string, ring *RingBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	// ffmpeg rewrites its progress line with carriage returns.
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if ring != nil {
			ring.Add(line)
		}
		select {
		case out <- line:
		default:
		}
	}
	// Keep the pipe drained so the child never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, r)
}

func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// RingBuffer keeps the last N lines written to it.
type RingBuffer struct {
	lines []string
	pos   int
	full  bool
	mu    sync.Mutex
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{lines: make([]string, size)}
}

func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

func (r *RingBuffer) GetAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.pos]...)
	}
	res := make([]string, len(r.lines))
	copy(res, r.lines[r.pos:])
	copy(res[len(r.lines)-r.pos:], r.lines[:r.pos])
	return res
}
