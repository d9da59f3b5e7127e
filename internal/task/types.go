// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package task turns per-platform configuration into supervised encoder
// processes for the forward and virtual-live families.
package task

import (
	"encoding/json"
	"time"

	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
)

// PlatformConfig is the operator configuration of one destination platform.
// Disabling is the only way to retire a platform.
type PlatformConfig struct {
	Platform string `json:"platform"`
	Enabled  bool   `json:"enabled"`
	Server   string `json:"server"`
	Secret   string `json:"secret"`
	Custom   bool   `json:"custom,omitempty"`
	Label    string `json:"label,omitempty"`
	// Files lists virtual-live sources; the first entry is the selected one.
	Files []SourceFile `json:"files,omitempty"`
}

// Source file types. Uploads live on local disk; streams are remote URLs.
const (
	SourceUpload = "upload"
	SourceStream = "stream"
)

// SourceFile is a media file a virtual-live platform can loop.
type SourceFile struct {
	UUID   string              `json:"uuid"`
	Name   string              `json:"name,omitempty"`
	Type   string              `json:"type,omitempty"`
	Size   int64               `json:"size,omitempty"`
	Target string              `json:"target"`
	Format *ffmpeg.Format      `json:"format,omitempty"`
	Video  *ffmpeg.VideoStream `json:"video,omitempty"`
	Audio  *ffmpeg.AudioStream `json:"audio,omitempty"`
}

// LiveStream is the media server's record of a stream being published.
type LiveStream struct {
	Vhost  string    `json:"vhost,omitempty"`
	App    string    `json:"app"`
	Stream string    `json:"stream"`
	Server string    `json:"server,omitempty"`
	Client string    `json:"client,omitempty"`
	Update time.Time `json:"update"`
}

// Record is one task: a platform bound to a source, with the encoder that
// serves it. Task is zero while no process is running. Owner is the id of
// the supervisor instance that spawned Task.
type Record struct {
	UUID     string          `json:"uuid"`
	Platform string          `json:"platform"`
	Input    string          `json:"input"`
	Output   string          `json:"output,omitempty"`
	Task     int             `json:"task,omitempty"`
	Owner    string          `json:"pid,omitempty"`
	Stream   json.RawMessage `json:"stream,omitempty"`
	Update   time.Time       `json:"update"`
}

// ExitCode is written once when an encoder process exits.
type ExitCode struct {
	Close  bool      `json:"close"`
	Code   int       `json:"code"`
	Update time.Time `json:"update"`
}

// Frame is the last sampled encoder progress line.
type Frame struct {
	Log    string    `json:"log"`
	Update time.Time `json:"update"`
}

// RecordKey names the task of platform bound to source.
func RecordKey(platform, source string) string {
	return platform + "@" + source
}

// Key is the field of a live stream in the active-stream hash.
func (s LiveStream) Key() string {
	vhost := s.Vhost
	if vhost == "" {
		vhost = "__defaultVhost__"
	}
	return vhost + "/" + s.App + "/" + s.Stream
}
