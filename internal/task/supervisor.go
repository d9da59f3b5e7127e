// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/metrics"
	"github.com/ManuGH/livegate/internal/procgroup"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/rs/zerolog"
)

// Options configures a Supervisor.
type Options struct {
	Kind     Kind
	Store    store.Hash
	Launcher ffmpeg.Launcher
	// Procs signals processes this instance no longer holds a handle for.
	Procs procgroup.Controller
	// InstanceID identifies this supervisor. Records owned by another id are
	// treated as orphaned and respawned.
	InstanceID string
	Clock      clock.Clock

	Tick         time.Duration
	IdleWindow   time.Duration
	KillInterval time.Duration
	StopTimeout  time.Duration
}

// Supervisor reconciles task records against running encoder processes.
type Supervisor struct {
	kind       Kind
	store      store.Hash
	gen        *Generator
	launcher   ffmpeg.Launcher
	procs      procgroup.Controller
	instanceID string
	clock      clock.Clock
	logger     zerolog.Logger

	tick         time.Duration
	idleWindow   time.Duration
	killInterval time.Duration
	stopTimeout  time.Duration

	mu      sync.Mutex
	running map[string]*tracked
	wg      sync.WaitGroup
}

type tracked struct {
	proc   ffmpeg.Process
	exited chan struct{}
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Procs == nil {
		opts.Procs = procgroup.OS{}
	}
	if opts.Tick <= 0 {
		opts.Tick = 3 * time.Second
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = 30 * time.Second
	}
	if opts.KillInterval <= 0 {
		opts.KillInterval = 800 * time.Millisecond
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Supervisor{
		kind:         opts.Kind,
		store:        opts.Store,
		gen:          NewGenerator(opts.Kind, opts.Store, opts.Clock),
		launcher:     opts.Launcher,
		procs:        opts.Procs,
		instanceID:   opts.InstanceID,
		clock:        opts.Clock,
		logger:       log.WithComponent("task."+opts.Kind.Name).With().Str(log.FieldOwner, opts.InstanceID).Logger(),
		tick:         opts.Tick,
		idleWindow:   opts.IdleWindow,
		killInterval: opts.KillInterval,
		stopTimeout:  opts.StopTimeout,
		running:      make(map[string]*tracked),
	}
}

// Name returns the task family name.
func (s *Supervisor) Name() string { return s.kind.Name }

// Run ticks until ctx is cancelled or a tick fails. Owned processes are
// stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.stopAll()

	s.logger.Info().Str(log.FieldEvent, "task.loop_started").Dur("tick", s.tick).Msg("task supervisor started")
	for {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s tick: %w", s.kind.Name, err)
		}
		if err := clock.Sleep(ctx, s.clock, s.tick); err != nil {
			s.logger.Info().Str(log.FieldEvent, "task.loop_stopped").Msg("task supervisor stopping")
			return nil
		}
	}
}

// Tick generates bindings and reconciles every task record once.
func (s *Supervisor) Tick(ctx context.Context) error {
	if err := s.gen.Generate(ctx); err != nil {
		return err
	}
	return s.Reconcile(ctx)
}

// Reconcile applies RemoveDisabled, StartNew, RestartDead, RestartChanged and
// TerminateIdle to each record, stopping at the first step that handles it.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	keys, err := s.store.HKeys(ctx, s.kind.Keys.Stream)
	if err != nil {
		return fmt.Errorf("list %s tasks: %w", s.kind.Name, err)
	}
	for _, key := range keys {
		if err := s.reconcile(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

type step func(ctx context.Context, key string, rec *Record, cfg *PlatformConfig) (bool, error)

func (s *Supervisor) reconcile(ctx context.Context, key string) error {
	var rec Record
	found, err := store.GetJSON(ctx, s.store, s.kind.Keys.Stream, key, &rec)
	if err != nil || !found {
		return err
	}
	var cfg PlatformConfig
	found, err = store.GetJSON(ctx, s.store, s.kind.Keys.Config, rec.Platform, &cfg)
	if err != nil || !found {
		return err
	}

	// A record bound to a source its platform no longer selects is retired.
	if _, source, _ := strings.Cut(key, "@"); !s.kind.Source.Selected(cfg, source) {
		cfg.Enabled = false
	}

	for _, fn := range []step{s.removeDisabled, s.startNew, s.restartDead, s.restartChanged, s.terminateIdle} {
		handled, err := fn(ctx, key, &rec, &cfg)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return nil
}

func (s *Supervisor) removeDisabled(ctx context.Context, key string, rec *Record, cfg *PlatformConfig) (bool, error) {
	if cfg.Enabled {
		return false, nil
	}
	return true, s.cleanup(ctx, key, rec, "disabled")
}

func (s *Supervisor) cleanup(ctx context.Context, key string, rec *Record, reason string) error {
	keys := s.kind.Keys

	if err := s.stop(ctx, key, rec); err != nil {
		return err
	}

	if err := s.store.HDel(ctx, keys.Stream, key); err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	if err := s.store.HDel(ctx, keys.Frame, key); err != nil {
		return fmt.Errorf("delete frame %s: %w", key, err)
	}
	if err := s.store.HDel(ctx, keys.Code, key); err != nil {
		return fmt.Errorf("delete code %s: %w", key, err)
	}

	// Only release the mapping if it still points at this record's source.
	_, source, _ := strings.Cut(key, "@")
	mapped, err := s.store.HGet(ctx, keys.Map, rec.Platform)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read map %s: %w", rec.Platform, err)
	}
	if err == nil && mapped == source {
		if err := s.store.HDel(ctx, keys.Map, rec.Platform); err != nil {
			return fmt.Errorf("delete map %s: %w", rec.Platform, err)
		}
	}

	metrics.TaskCleanupsTotal.WithLabelValues(s.kind.Name, reason).Inc()
	s.logger.Info().
		Str(log.FieldEvent, "task.cleanup").
		Str(log.FieldPlatform, rec.Platform).
		Str(log.FieldStreamKey, key).
		Int(log.FieldPID, rec.Task).
		Str("reason", reason).
		Msg("task removed")
	return nil
}

// stop kills the encoder of rec if this instance spawned it and waits until
// its exit is recorded or the process is gone.
func (s *Supervisor) stop(ctx context.Context, key string, rec *Record) error {
	keys := s.kind.Keys

	for rec.Owner == s.instanceID && rec.Task != 0 {
		var code ExitCode
		found, err := store.GetJSON(ctx, s.store, keys.Code, key, &code)
		if err != nil {
			return err
		}
		if found && code.Close {
			break
		}

		s.logger.Info().
			Str(log.FieldEvent, "task.kill").
			Str(log.FieldStreamKey, key).
			Int(log.FieldPID, rec.Task).
			Msg("killing encoder")

		if t := s.lookup(key); t != nil {
			if err := t.proc.Stop(0, s.killInterval); err != nil {
				s.logger.Debug().Err(err).Str(log.FieldStreamKey, key).Msg("stop encoder")
			}
			timer := s.clock.NewTimer(s.killInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-t.exited:
			case <-timer.C():
			}
			timer.Stop()
			continue
		}

		if !s.procs.Alive(rec.Task) {
			break
		}
		if err := s.procs.Kill(rec.Task); err != nil && !errors.Is(err, procgroup.ErrProcessNotFound) {
			s.logger.Warn().Err(err).Int(log.FieldPID, rec.Task).Msg("kill encoder")
		}
		if err := clock.Sleep(ctx, s.clock, s.killInterval); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) startNew(ctx context.Context, key string, rec *Record, cfg *PlatformConfig) (bool, error) {
	if !cfg.Enabled {
		return false, nil
	}
	if rec.Task != 0 && rec.Owner == s.instanceID {
		return false, nil
	}

	output := GenerateOutput(cfg.Server, cfg.Secret)
	proc, err := s.launcher.Start(ctx, ffmpeg.Spec{Args: s.kind.Args(rec.Input, output)})
	if err != nil {
		metrics.TaskStartErrorsTotal.WithLabelValues(s.kind.Name).Inc()
		s.logger.Error().
			Err(err).
			Str(log.FieldEvent, "task.start_failed").
			Str(log.FieldStreamKey, key).
			Msg("failed to start encoder")
		return true, nil
	}

	previous := rec.Owner
	rec.Output = output
	rec.Task = proc.PID()
	rec.Owner = s.instanceID
	if err := store.SetJSON(ctx, s.store, s.kind.Keys.Stream, key, rec); err != nil {
		_ = proc.Stop(0, s.stopTimeout)
		return false, err
	}
	if err := s.store.HDel(ctx, s.kind.Keys.Code, key); err != nil {
		_ = proc.Stop(0, s.stopTimeout)
		return false, fmt.Errorf("clear code %s: %w", key, err)
	}
	if err := s.store.HDel(ctx, s.kind.Keys.Frame, key); err != nil {
		_ = proc.Stop(0, s.stopTimeout)
		return false, fmt.Errorf("clear frame %s: %w", key, err)
	}

	s.track(key, proc)
	metrics.TaskStartsTotal.WithLabelValues(s.kind.Name).Inc()
	s.logger.Info().
		Str(log.FieldEvent, "task.start").
		Str(log.FieldStreamKey, key).
		Int(log.FieldPID, rec.Task).
		Str("previous_owner", previous).
		Str(log.FieldInput, rec.Input).
		Str(log.FieldOutput, rec.Output).
		Msg("encoder started")
	return false, nil
}

func (s *Supervisor) restartDead(ctx context.Context, key string, rec *Record, cfg *PlatformConfig) (bool, error) {
	if !cfg.Enabled || rec.Task == 0 {
		return false, nil
	}
	var code ExitCode
	found, err := store.GetJSON(ctx, s.store, s.kind.Keys.Code, key, &code)
	if err != nil || !found || !code.Close {
		return false, err
	}

	previous := rec.Task
	rec.Task = 0
	if err := store.SetJSON(ctx, s.store, s.kind.Keys.Stream, key, rec); err != nil {
		return false, err
	}
	metrics.TaskResetsTotal.WithLabelValues(s.kind.Name).Inc()
	s.logger.Info().
		Str(log.FieldEvent, "task.reset").
		Str(log.FieldStreamKey, key).
		Int(log.FieldPID, previous).
		Int(log.FieldExitCode, code.Code).
		Time("at", code.Update).
		Msg("encoder exited, scheduled for restart")
	return false, nil
}

// restartChanged stops an encoder whose output no longer matches the server
// and secret of its platform. StartNew respawns it on the next tick.
func (s *Supervisor) restartChanged(ctx context.Context, key string, rec *Record, cfg *PlatformConfig) (bool, error) {
	if !cfg.Enabled || rec.Task == 0 || rec.Owner != s.instanceID {
		return false, nil
	}
	output := GenerateOutput(cfg.Server, cfg.Secret)
	if rec.Output == output {
		return false, nil
	}

	s.logger.Info().
		Str(log.FieldEvent, "task.output_changed").
		Str(log.FieldStreamKey, key).
		Int(log.FieldPID, rec.Task).
		Str("previous_output", rec.Output).
		Str(log.FieldOutput, output).
		Msg("platform output changed, restarting encoder")
	if err := s.stop(ctx, key, rec); err != nil {
		return false, err
	}

	rec.Task = 0
	if err := store.SetJSON(ctx, s.store, s.kind.Keys.Stream, key, rec); err != nil {
		return false, err
	}
	metrics.TaskResetsTotal.WithLabelValues(s.kind.Name).Inc()
	return true, nil
}

func (s *Supervisor) terminateIdle(ctx context.Context, key string, rec *Record, cfg *PlatformConfig) (bool, error) {
	if !cfg.Enabled || rec.Task == 0 {
		return false, nil
	}
	var frame Frame
	found, err := store.GetJSON(ctx, s.store, s.kind.Keys.Frame, key, &frame)
	if err != nil || !found || frame.Update.IsZero() {
		return false, err
	}

	expired := frame.Update.Add(s.idleWindow)
	if expired.After(s.clock.Now()) {
		return false, nil
	}

	cfg.Enabled = false
	s.logger.Info().
		Str(log.FieldEvent, "task.expire").
		Str(log.FieldPlatform, rec.Platform).
		Str(log.FieldStreamKey, key).
		Int(log.FieldPID, rec.Task).
		Time("expired", expired).
		Msg("encoder idle, terminating")
	return true, s.cleanup(ctx, key, rec, "idle")
}

func (s *Supervisor) lookup(key string) *tracked {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[key]
}

// Running returns the number of encoder processes this instance holds.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	procs := make([]ffmpeg.Process, 0, len(s.running))
	for _, t := range s.running {
		procs = append(procs, t.proc)
	}
	s.mu.Unlock()

	for _, p := range procs {
		if err := p.Stop(0, s.stopTimeout); err != nil {
			s.logger.Warn().Err(err).Int(log.FieldPID, p.PID()).Msg("stop encoder on shutdown")
		}
	}
	s.wg.Wait()
}
