// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"

	"github.com/ManuGH/livegate/internal/store"
)

// Publish marks s as live. Forward rules pick it up on the next tick.
func Publish(ctx context.Context, h store.Hash, s LiveStream) error {
	return store.SetJSON(ctx, h, store.StreamActive, s.Key(), s)
}

// Unpublish clears the live mark of s. Platforms that are not mapped yet
// no longer see it as a candidate.
func Unpublish(ctx context.Context, h store.Hash, s LiveStream) error {
	return h.HDel(ctx, store.StreamActive, s.Key())
}

// LiveStreams returns every stream currently marked live, keyed by
// "vhost/app/stream".
func LiveStreams(ctx context.Context, h store.Hash) (map[string]LiveStream, error) {
	return store.GetAllJSON[LiveStream](ctx, h, store.StreamActive)
}
