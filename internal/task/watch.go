// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"strings"
	"time"

	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/metrics"
	"github.com/ManuGH/livegate/internal/store"
	"golang.org/x/time/rate"
)

const writeTimeout = 5 * time.Second

func (s *Supervisor) track(key string, proc ffmpeg.Process) {
	t := &tracked{proc: proc, exited: make(chan struct{})}
	s.mu.Lock()
	s.running[key] = t
	s.mu.Unlock()
	metrics.TasksRunning.WithLabelValues(s.kind.Name).Inc()

	s.wg.Add(1)
	go s.watch(key, t)
}

// watch follows one encoder until it exits. Progress lines are sampled into
// the frame hash and the exit code is recorded last.
func (s *Supervisor) watch(key string, t *tracked) {
	defer s.wg.Done()
	defer close(t.exited)

	logger := s.logger.With().Str(log.FieldStreamKey, key).Int(log.FieldPID, t.proc.PID()).Logger()
	sample := rate.Sometimes{Every: 3}

	stdout, stderr := t.proc.Stdout(), t.proc.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			logger.Debug().Msg(line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			sample.Do(func() {
				progress := ffmpeg.NormalizeProgress(strings.TrimSpace(line))
				if !ffmpeg.IsProgressLine(progress) {
					return
				}
				s.writeHash(s.kind.Keys.Frame, key, Frame{Log: progress, Update: s.clock.Now()})
				logger.Debug().Str(log.FieldEvent, "task.active").Msg(progress)
			})
		}
	}

	<-t.proc.Done()
	exit := t.proc.Exit()
	s.writeHash(s.kind.Keys.Code, key, ExitCode{Close: true, Code: exit.Code, Update: s.clock.Now()})

	s.mu.Lock()
	if s.running[key] == t {
		delete(s.running, key)
	}
	s.mu.Unlock()
	metrics.TasksRunning.WithLabelValues(s.kind.Name).Dec()

	evt := logger.Info()
	if exit.Err != nil {
		evt = logger.Warn().Err(exit.Err)
	}
	evt.Str(log.FieldEvent, "task.close").Int(log.FieldExitCode, exit.Code).Msg("encoder exited")
}

func (s *Supervisor) writeHash(key, field string, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := store.SetJSON(ctx, s.store, key, field, v); err != nil {
		s.logger.Warn().Err(err).Str("hash", key).Str(log.FieldStreamKey, field).Msg("encoder state write failed")
	}
}
