// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/store"
)

const patternAll = "all"

// Catalog answers read queries about the sessions of one kind and holds
// its enable switch.
type Catalog struct {
	kind  Kind
	store store.Hash
}

func NewCatalog(kind Kind, h store.Hash) *Catalog {
	return &Catalog{kind: kind, store: h}
}

func (c *Catalog) Kind() Kind { return c.kind }

// Enabled reports whether every stream should be archived.
func (c *Catalog) Enabled(ctx context.Context) (bool, error) {
	v, err := c.store.HGet(ctx, c.kind.Keys.Patterns, patternAll)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return v == "true", nil
}

// SetEnabled switches archiving of every stream on or off.
func (c *Catalog) SetEnabled(ctx context.Context, all bool) error {
	return c.store.HSet(ctx, c.kind.Keys.Patterns, patternAll, strconv.FormatBool(all))
}

// Outcome values recorded by MarkHook.
const (
	HookTaskCreated = "task_created"
	HookIgnored     = "ignore"
	HookDropped     = "dropped"
)

// MarkHook records how the last segment announced for sourceURL was handled.
func (c *Catalog) MarkHook(ctx context.Context, sourceURL, outcome string, now time.Time) error {
	return store.SetJSON(ctx, c.store, c.kind.Keys.Patterns, sourceURL, map[string]any{
		c.kind.Name: outcome,
		"update":    now,
	})
}

// Session returns the metadata of the session with the given uuid.
func (c *Catalog) Session(ctx context.Context, id string) (*Metadata, error) {
	var meta Metadata
	found, err := store.GetJSON(ctx, c.store, c.kind.Keys.Metadata, id, &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return &meta, nil
}

// Files summarizes every session, most recently updated first.
func (c *Catalog) Files(ctx context.Context) ([]Summary, error) {
	all, err := store.GetAllJSON[Metadata](ctx, c.store, c.kind.Keys.Metadata)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, meta := range all {
		out = append(out, summarize(meta))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Update.Equal(out[j].Update) {
			return out[i].Update.After(out[j].Update)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func summarize(meta Metadata) Summary {
	s := Summary{
		UUID:     meta.UUID,
		Bucket:   meta.Bucket,
		Region:   meta.Region,
		Vhost:    meta.Vhost,
		App:      meta.App,
		Stream:   meta.Stream,
		Progress: meta.Progress,
		Update:   meta.Update,
		Done:     meta.Done,
		Segments: len(meta.Files),
	}
	for _, f := range meta.Files {
		s.Duration += f.Duration
		s.Size += f.Size
	}
	return s
}

// Playlist renders the playlist of a session: an EVENT playlist while it is
// still recording and a VOD playlist once it is done.
func (c *Catalog) Playlist(ctx context.Context, id string, opts playlist.Options) (contentType, body string, err error) {
	meta, err := c.Session(ctx, id)
	if err != nil {
		return "", "", err
	}
	build := playlist.BuildVOD
	if meta.Progress {
		build = playlist.BuildEvent
	}
	contentType, body, _, err = build(meta.Document(), opts)
	return contentType, body, err
}
