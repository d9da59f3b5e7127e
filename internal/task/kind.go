// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	"github.com/ManuGH/livegate/internal/store"
)

// Binding is a source a platform can be mapped to.
type Binding struct {
	SourceID string
	Input    string
	Stream   any
}

// Source decides which inputs a platform is bound to.
type Source interface {
	// Candidates returns the bindings for cfg, preferred first. The first
	// candidate wins when the platform is unmapped.
	Candidates(ctx context.Context, cfg PlatformConfig) ([]Binding, error)
	// Selected reports whether sourceID is still the input cfg wants.
	Selected(cfg PlatformConfig, sourceID string) bool
}

// Kind parameterizes a task family.
type Kind struct {
	Name   string
	Keys   store.TaskKeys
	Args   func(input, output string) []string
	Source Source
	// NeedsFiles rejects platform configs without source files.
	NeedsFiles bool
}

// Forward relays every live stream to the enabled platforms.
func Forward(h store.Hash, inputHost string) Kind {
	return Kind{
		Name:   "forward",
		Keys:   store.ForwardKeys,
		Args:   ffmpeg.ForwardArgs,
		Source: &ForwardSource{store: h, inputHost: inputHost},
	}
}

// VirtualLive loops the selected file of each enabled platform.
func VirtualLive() Kind {
	return Kind{
		Name:       "vlive",
		Keys:       store.VLiveKeys,
		Args:       ffmpeg.LoopArgs,
		Source:     VirtualLiveSource{},
		NeedsFiles: true,
	}
}

// ForwardSource binds platforms to streams currently published on the media server.
type ForwardSource struct {
	store     store.Hash
	inputHost string
}

func (f *ForwardSource) Candidates(ctx context.Context, _ PlatformConfig) ([]Binding, error) {
	raw, err := f.store.HGetAll(ctx, store.StreamActive)
	if err != nil {
		return nil, fmt.Errorf("list active streams: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Binding, 0, len(keys))
	for _, k := range keys {
		var s LiveStream
		if err := json.Unmarshal([]byte(raw[k]), &s); err != nil {
			continue
		}
		out = append(out, Binding{
			SourceID: k,
			Input:    fmt.Sprintf("rtmp://%s/%s/%s", f.inputHost, s.App, s.Stream),
			Stream:   s,
		})
	}
	return out, nil
}

func (f *ForwardSource) Selected(PlatformConfig, string) bool { return true }

// VirtualLiveSource binds a platform to the first file of its config.
type VirtualLiveSource struct{}

func (VirtualLiveSource) Candidates(_ context.Context, cfg PlatformConfig) ([]Binding, error) {
	if len(cfg.Files) == 0 {
		return nil, nil
	}
	f := cfg.Files[0]
	return []Binding{{SourceID: f.UUID, Input: f.Target, Stream: f}}, nil
}

func (VirtualLiveSource) Selected(cfg PlatformConfig, sourceID string) bool {
	return len(cfg.Files) > 0 && cfg.Files[0].UUID == sourceID
}
