// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
	}
}

// Path returns the YAML file this loader reads, or "" for ENV-only setups.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.Archive.WorkDir); err == nil {
		cfg.Archive.WorkDir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file on top of cfg with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.Mode = ParseString("LIVEGATE_MODE", cfg.Mode)
	cfg.LogLevel = ParseString("LIVEGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("LIVEGATE_LOG_SERVICE", cfg.LogService)

	cfg.API.ListenAddr = ParseString("LIVEGATE_LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = ParseInt("LIVEGATE_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.MetricsAddr = ParseString("LIVEGATE_METRICS_LISTEN", cfg.API.MetricsAddr)

	cfg.Redis.Addr = ParseString("LIVEGATE_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString("LIVEGATE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt("LIVEGATE_REDIS_DB", cfg.Redis.DB)

	cfg.Storage.Endpoint = ParseString("LIVEGATE_STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKey = ParseString("LIVEGATE_STORAGE_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = ParseString("LIVEGATE_STORAGE_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.UseSSL = ParseBool("LIVEGATE_STORAGE_USE_SSL", cfg.Storage.UseSSL)
	cfg.Storage.Region = ParseString("LIVEGATE_STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.Domain = ParseString("LIVEGATE_STORAGE_DOMAIN", cfg.Storage.Domain)
	cfg.Storage.BreakerThreshold = ParseInt("LIVEGATE_STORAGE_BREAKER_THRESHOLD", cfg.Storage.BreakerThreshold)
	cfg.Storage.BreakerReset = ParseDuration("LIVEGATE_STORAGE_BREAKER_RESET", cfg.Storage.BreakerReset)

	cfg.Archive.WorkDir = ParseString("LIVEGATE_WORK_DIR", cfg.Archive.WorkDir)
	cfg.Archive.DVRBucket = ParseString("LIVEGATE_DVR_BUCKET", cfg.Archive.DVRBucket)
	cfg.Archive.VODBucket = ParseString("LIVEGATE_VOD_BUCKET", cfg.Archive.VODBucket)
	cfg.Archive.Tick = ParseDuration("LIVEGATE_ARCHIVE_TICK", cfg.Archive.Tick)
	cfg.Archive.IdleBackoff = ParseDuration("LIVEGATE_ARCHIVE_IDLE_BACKOFF", cfg.Archive.IdleBackoff)
	cfg.Archive.Expiry = ParseDuration("LIVEGATE_ARCHIVE_EXPIRY", cfg.Archive.Expiry)

	cfg.Task.Tick = ParseDuration("LIVEGATE_TASK_TICK", cfg.Task.Tick)
	cfg.Task.IdleWindow = ParseDuration("LIVEGATE_TASK_IDLE_WINDOW", cfg.Task.IdleWindow)
	cfg.Task.KillInterval = ParseDuration("LIVEGATE_TASK_KILL_INTERVAL", cfg.Task.KillInterval)
	cfg.Task.InputHost = ParseString("LIVEGATE_TASK_INPUT_HOST", cfg.Task.InputHost)
	cfg.Task.UploadDir = ParseString("LIVEGATE_UPLOAD_DIR", cfg.Task.UploadDir)
	cfg.Task.VLiveDir = ParseString("LIVEGATE_VLIVE_DIR", cfg.Task.VLiveDir)

	cfg.FFmpeg.Bin = ParseString("LIVEGATE_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.Supervisor.RestartBackoff = ParseDuration("LIVEGATE_RESTART_BACKOFF", cfg.Supervisor.RestartBackoff)

	cfg.Telemetry.Enabled = ParseBool("LIVEGATE_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString("LIVEGATE_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString("LIVEGATE_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("LIVEGATE_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
