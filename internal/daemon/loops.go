// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/health"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/metrics"
	"github.com/rs/zerolog"
)

// Loop is a long-running worker. Run returns nil once ctx is cancelled and an
// error when a tick failed.
type Loop struct {
	Name string
	Run  func(ctx context.Context) error
}

type loopState struct {
	restarts int
	lastErr  error
	failedAt time.Time
	backoff  bool
}

// loopSet restarts failed loops after a fixed backoff and remembers their
// state for the readiness probe.
type loopSet struct {
	backoff time.Duration
	clock   clock.Clock
	logger  zerolog.Logger

	mu     sync.Mutex
	states map[string]*loopState
}

func newLoopSet(backoff time.Duration, c clock.Clock) *loopSet {
	if c == nil {
		c = clock.Real{}
	}
	return &loopSet{
		backoff: backoff,
		clock:   c,
		logger:  log.WithComponent("daemon"),
		states:  make(map[string]*loopState),
	}
}

// supervise runs l until ctx is cancelled, restarting it after a failure.
func (s *loopSet) supervise(ctx context.Context, l Loop) error {
	s.mu.Lock()
	st := &loopState{}
	s.states[l.Name] = st
	s.mu.Unlock()

	logger := s.logger.With().Str("loop", l.Name).Logger()
	for {
		err := l.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			logger.Info().Msg("loop finished")
			return nil
		}

		s.mu.Lock()
		st.restarts++
		st.lastErr = err
		st.failedAt = s.clock.Now()
		st.backoff = true
		s.mu.Unlock()

		metrics.LoopRestartsTotal.WithLabelValues(l.Name).Inc()
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "loop.restart").
			Dur("backoff", s.backoff).
			Msg("loop failed, restarting after backoff")

		if err := clock.Sleep(ctx, s.clock, s.backoff); err != nil {
			return nil
		}
		s.mu.Lock()
		st.backoff = false
		s.mu.Unlock()
	}
}

// Check reports degraded while any loop waits out its backoff.
func (s *loopSet) Check(_ context.Context) health.CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failing []string
	for name, st := range s.states {
		if st.backoff {
			failing = append(failing, fmt.Sprintf("%s: %v", name, st.lastErr))
		}
	}
	if len(failing) == 0 {
		return health.CheckResult{Status: health.StatusHealthy}
	}
	sort.Strings(failing)
	return health.CheckResult{Status: health.StatusDegraded, Error: strings.Join(failing, "; ")}
}

func (s *loopSet) restarts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		return st.restarts
	}
	return 0
}
