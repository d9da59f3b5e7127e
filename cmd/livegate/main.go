// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/livegate/internal/api"
	"github.com/ManuGH/livegate/internal/api/middleware"
	"github.com/ManuGH/livegate/internal/config"
	"github.com/ManuGH/livegate/internal/daemon"
	"github.com/ManuGH/livegate/internal/health"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	lglog "github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/telemetry"
	"github.com/ManuGH/livegate/internal/version"
	"github.com/google/uuid"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	lglog.Configure(lglog.Config{
		Level:   "info",
		Service: "livegate",
		Version: version.Version,
	})
	logger := lglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, strings.TrimSpace(*configPath)); err != nil {
		logger.Error().Err(err).Str(lglog.FieldEvent, "daemon.failed").Msg("daemon exited with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Str(lglog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
}

func run(ctx context.Context, configPath string) error {
	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	service := cfg.LogService
	if service == "" {
		service = "livegate"
	}
	if err := lglog.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := lglog.WithComponent("daemon")
	logger.Info().
		Str(lglog.FieldEvent, "config.loaded").
		Str("path", configPath).
		Str("mode", cfg.Mode).
		Msg("configuration loaded")

	instanceID := uuid.NewString()
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    service,
		ServiceVersion: version.Version,
		Environment:    cfg.Mode,
		InstanceID:     instanceID,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	rdb, err := store.NewRedis(store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, lglog.WithComponent("store"))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return fmt.Errorf("store: %w", err)
	}

	if err := health.PerformStartupChecks(ctx, cfg, rdb); err != nil {
		_ = rdb.Close()
		_ = tp.Shutdown(context.Background())
		return fmt.Errorf("startup checks: %w", err)
	}

	executor := ffmpeg.NewExecutor(cfg.FFmpeg.Bin, lglog.WithComponent("ffmpeg"))

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewRedisChecker(rdb))
	hm.RegisterChecker(health.NewWritableDirChecker("workdir", cfg.Archive.WorkDir))
	hm.RegisterChecker(health.NewWritableDirChecker("uploaddir", cfg.UploadDir()))
	hm.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin))

	w, err := wire(ctx, cfg, rdb, executor, instanceID)
	if err != nil {
		_ = rdb.Close()
		_ = tp.Shutdown(context.Background())
		return err
	}

	srv := api.New(api.Deps{
		Store:     rdb,
		Archivers: w.archivers,
		Tasks:     w.taskKinds,
		Library:   w.library,
		Health:    hm,
		Stack: middleware.StackConfig{
			EnableMetrics:  true,
			TracingService: tracingService(cfg, service),
			EnableLogging:  true,
			RateLimit:      cfg.API.RateLimit,
		},
		ServeMetrics: cfg.API.MetricsAddr == "",
	})

	mgr, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:      cfg.API.ListenAddr,
		MetricsAddr:     cfg.API.MetricsAddr,
		ShutdownTimeout: 30 * time.Second,
	}, daemon.Deps{
		Logger:         logger,
		APIHandler:     srv.Handler(),
		MetricsHandler: api.MetricsHandler(),
	})
	if err != nil {
		_ = rdb.Close()
		_ = tp.Shutdown(context.Background())
		return err
	}
	// LIFO: the tracer flushes after redis is closed.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("redis", func(context.Context) error { return rdb.Close() })

	logger.Info().
		Str(lglog.FieldOwner, instanceID).
		Int("loops", len(w.loops)).
		Int("archivers", len(w.archivers)).
		Msg("starting livegate")

	app := daemon.NewApp(daemon.AppOptions{
		Manager:        mgr,
		Holder:         config.NewHolder(cfg, loader),
		Loops:          w.loops,
		Health:         hm,
		RestartBackoff: cfg.Supervisor.RestartBackoff,
	})
	return app.Run(ctx)
}

func tracingService(cfg config.AppConfig, service string) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return service
}
