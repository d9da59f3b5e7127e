// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks a resolved configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch cfg.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		add("mode %q must be %q or %q", cfg.Mode, ModeProduction, ModeDevelopment)
	}
	if cfg.Redis.Addr == "" {
		add("redis.addr is required")
	}
	if cfg.API.ListenAddr == "" {
		add("api.listenAddr is required")
	}
	if cfg.API.RateLimit < 0 {
		add("api.rateLimit must not be negative")
	}
	if cfg.Archive.WorkDir == "" {
		add("archive.workDir is required")
	}
	if cfg.FFmpeg.Bin == "" {
		add("ffmpeg.bin is required")
	}

	for name, d := range map[string]time.Duration{
		"archive.tick":              cfg.Archive.Tick,
		"archive.idleBackoff":       cfg.Archive.IdleBackoff,
		"task.tick":                 cfg.Task.Tick,
		"task.killInterval":         cfg.Task.KillInterval,
		"supervisor.restartBackoff": cfg.Supervisor.RestartBackoff,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if cfg.Storage.BreakerThreshold < 0 || cfg.Storage.BreakerReset < 0 {
		add("storage breaker settings must not be negative")
	}
	if cfg.Archive.Expiry < 0 || cfg.Task.IdleWindow < 0 {
		add("override windows must not be negative")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Exporter != "grpc" && cfg.Telemetry.Exporter != "http" {
			add("telemetry.exporter %q must be grpc or http", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			add("telemetry.samplingRate must be within [0,1]")
		}
	}

	return errors.Join(errs...)
}
