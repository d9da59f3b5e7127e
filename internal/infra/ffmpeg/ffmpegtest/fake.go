// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpegtest provides an in-memory encoder launcher for tests.
package ffmpegtest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
)

var _ ffmpeg.Launcher = (*Launcher)(nil)

// Launcher records every Start and hands out scripted processes.
type Launcher struct {
	mu      sync.Mutex
	nextPID int
	started []*Process

	// StartErr, when set, is returned by Start.
	StartErr error
	// OnStart, when set, runs for every new process before Start returns.
	OnStart func(*Process)
}

func NewLauncher() *Launcher {
	return &Launcher{nextPID: 4000}
}

func (l *Launcher) Start(_ context.Context, spec ffmpeg.Spec) (ffmpeg.Process, error) {
	l.mu.Lock()
	if l.StartErr != nil {
		err := l.StartErr
		l.mu.Unlock()
		return nil, err
	}
	l.nextPID++
	p := newProcess(l.nextPID, spec)
	l.started = append(l.started, p)
	hook := l.OnStart
	l.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return p, nil
}

// Started returns every process launched so far, oldest first.
func (l *Launcher) Started() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.started...)
}

// Last returns the most recent process or nil.
func (l *Launcher) Last() *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.started) == 0 {
		return nil
	}
	return l.started[len(l.started)-1]
}

// Process is a scripted encoder process.
type Process struct {
	Spec ffmpeg.Spec

	pid    int
	stdout chan string
	stderr chan string
	done   chan struct{}

	mu       sync.Mutex
	exit     ffmpeg.Exit
	finished bool
	stderrLn []string
}

func newProcess(pid int, spec ffmpeg.Spec) *Process {
	return &Process{
		Spec:   spec,
		pid:    pid,
		stdout: make(chan string, 256),
		stderr: make(chan string, 256),
		done:   make(chan struct{}),
	}
}

func (p *Process) PID() int              { return p.pid }
func (p *Process) Stdout() <-chan string { return p.stdout }
func (p *Process) Stderr() <-chan string { return p.stderr }
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Exit() ffmpeg.Exit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

func (p *Process) Diagnostics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stderrLn...)
}

// Stop finishes the process as if killed by a signal.
func (p *Process) Stop(time.Duration, time.Duration) error {
	p.Finish(-1)
	return nil
}

// WriteStdout emits one stdout line.
func (p *Process) WriteStdout(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.stdout <- line
	}
}

// WriteStderr emits one stderr line.
func (p *Process) WriteStderr(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.stderrLn = append(p.stderrLn, line)
		p.stderr <- line
	}
}

// Finish closes the output channels and completes the process with code.
// Only the first call has an effect.
func (p *Process) Finish(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.exit = ffmpeg.Exit{Code: code}
	close(p.stdout)
	close(p.stderr)
	close(p.done)
}

// Finished reports whether Finish or Stop has been called.
func (p *Process) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}
