// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Generator maps enabled platforms onto sources and materializes the task records.
type Generator struct {
	kind   Kind
	store  store.Hash
	clock  clock.Clock
	logger zerolog.Logger
}

func NewGenerator(kind Kind, h store.Hash, c clock.Clock) *Generator {
	if c == nil {
		c = clock.Real{}
	}
	return &Generator{
		kind:   kind,
		store:  h,
		clock:  c,
		logger: log.WithComponent("task." + kind.Name),
	}
}

// Generate binds every enabled, unmapped platform to its first candidate.
// A platform stays bound while the record of its mapping exists.
func (g *Generator) Generate(ctx context.Context) error {
	configs, err := store.GetAllJSON[PlatformConfig](ctx, g.store, g.kind.Keys.Config)
	if err != nil {
		return fmt.Errorf("load %s configs: %w", g.kind.Name, err)
	}

	platforms := make([]string, 0, len(configs))
	for p, cfg := range configs {
		if cfg.Enabled {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil
	}
	sort.Strings(platforms)

	for _, platform := range platforms {
		cfg := configs[platform]
		if cfg.Platform == "" {
			cfg.Platform = platform
		}
		candidates, err := g.kind.Source.Candidates(ctx, cfg)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			continue
		}
		if err := g.bind(ctx, platform, candidates[0]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) bind(ctx context.Context, platform string, b Binding) error {
	keys := g.kind.Keys

	mapped, err := g.store.HGet(ctx, keys.Map, platform)
	switch {
	case errors.Is(err, store.ErrNotFound):
		mapped = ""
	case err != nil:
		return fmt.Errorf("read map %s: %w", platform, err)
	}

	if mapped != "" {
		held, err := g.recordExists(ctx, RecordKey(platform, mapped))
		if err != nil {
			return err
		}
		// The current mapping holds until its record is torn down.
		if held {
			return nil
		}
	}

	if mapped != b.SourceID {
		if err := g.store.HSet(ctx, keys.Map, platform, b.SourceID); err != nil {
			return fmt.Errorf("write map %s: %w", platform, err)
		}
	}

	key := RecordKey(platform, b.SourceID)
	var rec Record
	found, err := store.GetJSON(ctx, g.store, keys.Stream, key, &rec)
	if err != nil {
		return err
	}
	if !found {
		rec = Record{
			UUID:     uuid.NewString(),
			Platform: platform,
			Input:    b.Input,
		}
	}
	stream, err := json.Marshal(b.Stream)
	if err != nil {
		return fmt.Errorf("encode stream of %s: %w", key, err)
	}
	rec.Stream = stream
	rec.Update = g.clock.Now()
	if err := store.SetJSON(ctx, g.store, keys.Stream, key, rec); err != nil {
		return err
	}

	g.logger.Info().
		Str(log.FieldEvent, "task.bound").
		Str(log.FieldPlatform, platform).
		Str(log.FieldStreamKey, key).
		Str(log.FieldInput, rec.Input).
		Str(log.FieldTaskUUID, rec.UUID).
		Msg("platform bound to source")
	return nil
}

func (g *Generator) recordExists(ctx context.Context, key string) (bool, error) {
	_, err := g.store.HGet(ctx, g.kind.Keys.Stream, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read record %s: %w", key, err)
	}
	return true, nil
}
