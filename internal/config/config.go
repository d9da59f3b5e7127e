// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the gateway configuration from defaults, an optional
// YAML file and LIVEGATE_* environment variables, in that order of precedence.
package config

import (
	"path/filepath"
	"time"
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Idle and expiry windows used when no explicit override is configured.
const (
	TaskIdleWindowProduction  = 30 * time.Second
	TaskIdleWindowDevelopment = 9 * time.Second
	ArchiveExpiryProduction   = 300 * time.Second
	ArchiveExpiryDevelopment  = 30 * time.Second
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version    string           `yaml:"-"`
	Mode       string           `yaml:"mode"`
	LogLevel   string           `yaml:"logLevel"`
	LogService string           `yaml:"logService"`
	API        APIConfig        `yaml:"api"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Task       TaskConfig       `yaml:"task"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is the number of requests per minute accepted from one client IP.
	RateLimit   int    `yaml:"rateLimit"`
	MetricsAddr string `yaml:"metricsAddr"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig describes the S3 compatible object store used by DVR and VOD.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Region    string `yaml:"region"`
	// Domain replaces the bucket host in absolute playlist URLs when set.
	Domain string `yaml:"domain"`
	// BreakerThreshold consecutive upload failures open the breaker for BreakerReset.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type ArchiveConfig struct {
	WorkDir     string        `yaml:"workDir"`
	DVRBucket   string        `yaml:"dvrBucket"`
	VODBucket   string        `yaml:"vodBucket"`
	Tick        time.Duration `yaml:"tick"`
	IdleBackoff time.Duration `yaml:"idleBackoff"`
	// Expiry overrides the mode dependent finalize window when non-zero.
	Expiry time.Duration `yaml:"expiry"`
}

type TaskConfig struct {
	Tick time.Duration `yaml:"tick"`
	// IdleWindow overrides the mode dependent heartbeat window when non-zero.
	IdleWindow   time.Duration `yaml:"idleWindow"`
	KillInterval time.Duration `yaml:"killInterval"`
	// InputHost is the media server host used to build forward inputs.
	InputHost string `yaml:"inputHost"`
	// UploadDir stages virtual-live uploads; VLiveDir holds selected files.
	// Both default to subdirectories of archive.workDir.
	UploadDir string `yaml:"uploadDir"`
	VLiveDir  string `yaml:"vliveDir"`
}

type FFmpegConfig struct {
	Bin string `yaml:"bin"`
}

type SupervisorConfig struct {
	RestartBackoff time.Duration `yaml:"restartBackoff"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Dev reports whether the shortened development windows apply.
func (c AppConfig) Dev() bool {
	return c.Mode == ModeDevelopment
}

// TaskIdleWindow returns the heartbeat age after which a task is torn down.
func (c AppConfig) TaskIdleWindow() time.Duration {
	if c.Task.IdleWindow > 0 {
		return c.Task.IdleWindow
	}
	if c.Dev() {
		return TaskIdleWindowDevelopment
	}
	return TaskIdleWindowProduction
}

// ArchiveExpiry returns the inactivity window after which a session is finalized.
func (c AppConfig) ArchiveExpiry() time.Duration {
	if c.Archive.Expiry > 0 {
		return c.Archive.Expiry
	}
	if c.Dev() {
		return ArchiveExpiryDevelopment
	}
	return ArchiveExpiryProduction
}

// UploadDir returns where virtual-live uploads are staged.
func (c AppConfig) UploadDir() string {
	if c.Task.UploadDir != "" {
		return c.Task.UploadDir
	}
	return filepath.Join(c.Archive.WorkDir, "upload")
}

// VLiveDir returns where files selected by virtual-live platforms live.
func (c AppConfig) VLiveDir() string {
	if c.Task.VLiveDir != "" {
		return c.Task.VLiveDir
	}
	return filepath.Join(c.Archive.WorkDir, "vlive")
}

func defaults() AppConfig {
	return AppConfig{
		Mode:     ModeProduction,
		LogLevel: "info",
		API: APIConfig{
			ListenAddr:  ":2021",
			RateLimit:   600,
			MetricsAddr: "",
		},
		Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
		Storage: StorageConfig{BreakerThreshold: 5, BreakerReset: 30 * time.Second},
		Archive: ArchiveConfig{
			WorkDir:     "./containers/data",
			Tick:        3 * time.Second,
			IdleBackoff: 9 * time.Second,
		},
		Task: TaskConfig{
			Tick:         3 * time.Second,
			KillInterval: 800 * time.Millisecond,
			InputHost:    "127.0.0.1",
		},
		FFmpeg:     FFmpegConfig{Bin: "ffmpeg"},
		Supervisor: SupervisorConfig{RestartBackoff: 30 * time.Second},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
