// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/livegate/internal/store"
)

var (
	// ErrInvalidPlatformConfig is returned by Save for incomplete configs.
	ErrInvalidPlatformConfig = errors.New("invalid platform config")
	// ErrPlatformNotFound is returned by Get for unknown platforms.
	ErrPlatformNotFound = errors.New("platform not found")
)

// ConfigStore reads and writes the platform configs of one task family.
type ConfigStore struct {
	kind  Kind
	keys  store.TaskKeys
	store store.Hash
}

func NewConfigStore(kind Kind, h store.Hash) *ConfigStore {
	return &ConfigStore{kind: kind, keys: kind.Keys, store: h}
}

// Kind returns the task family the store belongs to.
func (c *ConfigStore) Kind() Kind { return c.kind }

// Save replaces the config of cfg.Platform. The supervisor picks the change
// up on its next tick.
func (c *ConfigStore) Save(ctx context.Context, cfg PlatformConfig) error {
	cfg.Platform = strings.TrimSpace(cfg.Platform)
	var errs []error
	if cfg.Platform == "" {
		errs = append(errs, fmt.Errorf("%w: no platform", ErrInvalidPlatformConfig))
	}
	if strings.TrimSpace(cfg.Server) == "" {
		errs = append(errs, fmt.Errorf("%w: no server", ErrInvalidPlatformConfig))
	}
	if strings.ContainsAny(cfg.Platform, "@") {
		errs = append(errs, fmt.Errorf("%w: platform must not contain @", ErrInvalidPlatformConfig))
	}
	if c.kind.NeedsFiles && len(cfg.Files) == 0 {
		errs = append(errs, fmt.Errorf("%w: no files", ErrInvalidPlatformConfig))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return store.SetJSON(ctx, c.store, c.keys.Config, cfg.Platform, cfg)
}

// Get returns the config of platform.
func (c *ConfigStore) Get(ctx context.Context, platform string) (PlatformConfig, error) {
	var cfg PlatformConfig
	found, err := store.GetJSON(ctx, c.store, c.keys.Config, platform, &cfg)
	if err != nil {
		return cfg, err
	}
	if !found {
		return cfg, fmt.Errorf("%w: %s", ErrPlatformNotFound, platform)
	}
	return cfg, nil
}

// SetFiles replaces the source files of platform, creating a disabled
// config when none exists, and returns the files it replaced.
func (c *ConfigStore) SetFiles(ctx context.Context, platform string, files []SourceFile) ([]SourceFile, error) {
	cfg := PlatformConfig{Platform: platform}
	if _, err := store.GetJSON(ctx, c.store, c.keys.Config, platform, &cfg); err != nil {
		return nil, err
	}
	previous := cfg.Files
	cfg.Files = files
	if err := store.SetJSON(ctx, c.store, c.keys.Config, platform, cfg); err != nil {
		return nil, err
	}
	return previous, nil
}

// List returns every config ordered by platform.
func (c *ConfigStore) List(ctx context.Context) ([]PlatformConfig, error) {
	all, err := store.GetAllJSON[PlatformConfig](ctx, c.store, c.keys.Config)
	if err != nil {
		return nil, err
	}
	out := make([]PlatformConfig, 0, len(all))
	for _, cfg := range all {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

// Status is the dashboard view of one platform.
type Status struct {
	Platform string    `json:"platform"`
	Enabled  bool      `json:"enabled"`
	Custom   bool      `json:"custom"`
	Label    string    `json:"label,omitempty"`
	Stream   string    `json:"stream,omitempty"`
	Task     int       `json:"task,omitempty"`
	Frame    *Frame    `json:"frame"`
	Code     *ExitCode `json:"code,omitempty"`
}

// Tasks reports, for every configured platform, its mapped source and the
// last progress of its encoder.
func (c *ConfigStore) Tasks(ctx context.Context) ([]Status, error) {
	configs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	maps, err := c.store.HGetAll(ctx, c.keys.Map)
	if err != nil {
		return nil, fmt.Errorf("read maps: %w", err)
	}

	out := make([]Status, 0, len(configs))
	for _, cfg := range configs {
		st := Status{
			Platform: cfg.Platform,
			Enabled:  cfg.Enabled,
			Custom:   cfg.Custom,
			Label:    cfg.Label,
			Stream:   maps[cfg.Platform],
		}
		if st.Stream != "" {
			key := RecordKey(cfg.Platform, st.Stream)

			var rec Record
			if found, err := store.GetJSON(ctx, c.store, c.keys.Stream, key, &rec); err != nil {
				return nil, err
			} else if found {
				st.Task = rec.Task
			}
			var frame Frame
			if found, err := store.GetJSON(ctx, c.store, c.keys.Frame, key, &frame); err != nil {
				return nil, err
			} else if found {
				st.Frame = &frame
			}
			var code ExitCode
			if found, err := store.GetJSON(ctx, c.store, c.keys.Code, key, &code); err != nil {
				return nil, err
			} else if found {
				st.Code = &code
			}
		}
		out = append(out, st)
	}
	return out, nil
}
