// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/config"
	"github.com/ManuGH/livegate/internal/health"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// AppOptions configures an App.
type AppOptions struct {
	Manager Manager
	// Holder, when set, is watched for file changes and reloaded on SIGHUP.
	Holder *config.Holder
	Loops  []Loop
	// Health receives a checker reporting loops stuck in backoff.
	Health         *health.Manager
	RestartBackoff time.Duration
	Clock          clock.Clock
}

// App owns the long-lived runtime: the supervisor and archival loops, the
// config watcher and the servers delegated to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	loops        []Loop
	set          *loopSet
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(opts AppOptions) *App {
	backoff := opts.RestartBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	set := newLoopSet(backoff, opts.Clock)
	if opts.Health != nil {
		opts.Health.RegisterChecker(health.NewFuncChecker("loops", set.Check))
	}
	return &App{
		logger:       log.WithComponent("daemon"),
		manager:      opts.Manager,
		holder:       opts.Holder,
		loops:        opts.Loops,
		set:          set,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts every loop and the servers, and blocks until ctx is cancelled
// or a server fails. Failed loops are restarted; they never end Run.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.holder != nil {
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	// SIGHUP trigger for manual reload.
	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.holder.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	for _, l := range a.loops {
		l := l
		g.Go(func() error { return a.set.supervise(ctx, l) })
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
