// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/livegate/internal/config"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before any worker starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig, store Pinger) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := os.MkdirAll(cfg.Archive.WorkDir, 0o750); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if err := checkWritableDir(cfg.Archive.WorkDir); err != nil {
		return fmt.Errorf("work directory check failed: %w", err)
	}
	logger.Info().Str(log.FieldPath, cfg.Archive.WorkDir).Msg("work directory is writable")

	if err := checkListenAddr(cfg.API.ListenAddr); err != nil {
		return err
	}
	if cfg.API.MetricsAddr != "" {
		if err := checkListenAddr(cfg.API.MetricsAddr); err != nil {
			return err
		}
	}

	checkEncoder(logger, cfg.FFmpeg.Bin)
	warnTempWorkDir(logger, cfg.Archive.WorkDir)

	if store != nil {
		if res := NewRedisChecker(store).Check(ctx); res.Status != StatusHealthy {
			return fmt.Errorf("redis check failed: %s", res.Error)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis reachable")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

// checkEncoder only warns: without an encoder the task supervisors fail to
// launch but archiving to object storage keeps working.
func checkEncoder(logger zerolog.Logger, bin string) {
	bin = strings.TrimSpace(bin)
	if _, err := exec.LookPath(bin); err != nil {
		logger.Warn().Err(err).Str("ffmpeg", bin).Msg("ffmpeg binary not found; tasks and record transmux will fail")
		return
	}
	logger.Info().Str("ffmpeg", bin).Msg("ffmpeg binary available")
}

func warnTempWorkDir(logger zerolog.Logger, dir string) {
	tempDir := filepath.Clean(os.TempDir())
	dir = filepath.Clean(dir)
	if tempDir != "." && (dir == tempDir || strings.HasPrefix(dir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str(log.FieldPath, dir).
			Msg("work directory is under temp; staged segments and recordings may be lost on reboot")
	}
}
