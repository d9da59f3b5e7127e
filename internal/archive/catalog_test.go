// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMetadata(t *testing.T, h store.Hash, kind Kind, meta Metadata) {
	t.Helper()
	require.NoError(t, store.SetJSON(context.Background(), h, kind.Keys.Metadata, meta.UUID, meta))
}

func TestCatalog_Enabled(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	c := NewCatalog(KindDVR, h)

	on, err := c.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, c.SetEnabled(ctx, true))
	on, err = c.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	raw, err := h.HGet(ctx, KindDVR.Keys.Patterns, "all")
	require.NoError(t, err)
	assert.Equal(t, "true", raw)

	// Kinds are switched independently.
	on, err = NewCatalog(KindVOD, h).Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, c.SetEnabled(ctx, false))
	on, err = c.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestCatalog_Files(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	c := NewCatalog(KindVOD, h)

	done := epoch.Add(time.Hour)
	seedMetadata(t, h, KindVOD, Metadata{
		UUID: "old", Update: epoch, Stream: "a", Done: &done,
		Files: []MetaFile{{TsID: "1", Duration: 10, Size: 100}, {TsID: "2", Duration: 5.5, Size: 50}},
	})
	seedMetadata(t, h, KindVOD, Metadata{
		UUID: "new", Update: epoch.Add(time.Minute), Stream: "b", Progress: true,
		Files: []MetaFile{{TsID: "3", Duration: 2, Size: 10}},
	})

	files, err := c.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "new", files[0].UUID)
	assert.True(t, files[0].Progress)
	assert.Equal(t, 1, files[0].Segments)

	assert.Equal(t, "old", files[1].UUID)
	assert.Equal(t, 2, files[1].Segments)
	assert.InDelta(t, 15.5, files[1].Duration, 0.001)
	assert.Equal(t, int64(150), files[1].Size)
	require.NotNil(t, files[1].Done)
}

func TestCatalog_Playlist(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	c := NewCatalog(KindDVR, h)

	meta := Metadata{
		UUID: "s1", Bucket: "dvr-bucket", Region: "ap-beijing", Progress: true,
		Files: []MetaFile{{Key: "s1/a.ts", TsID: "a", SeqNo: 1, Duration: 10}},
	}
	seedMetadata(t, h, KindDVR, meta)

	ct, body, err := c.Playlist(ctx, "s1", playlist.Options{Absolute: true})
	require.NoError(t, err)
	assert.Equal(t, playlist.ContentType, ct)
	assert.Contains(t, body, "#EXT-X-PLAYLIST-TYPE:EVENT")
	assert.Contains(t, body, "https://dvr-bucket.cos.ap-beijing.myqcloud.com/s1/a.ts")
	assert.NotContains(t, body, "#EXT-X-ENDLIST")

	meta.Progress = false
	seedMetadata(t, h, KindDVR, meta)
	_, body, err = c.Playlist(ctx, "s1", playlist.Options{Absolute: true, Domain: "cdn.example.com"})
	require.NoError(t, err)
	assert.Contains(t, body, "https://cdn.example.com/s1/a.ts")
	assert.Contains(t, body, "#EXT-X-ENDLIST")

	_, _, err = c.Playlist(ctx, "missing", playlist.Options{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCatalog_MarkHook(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	c := NewCatalog(KindRecord, h)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.MarkHook(ctx, "live/livestream.m3u8", HookTaskCreated, now))

	var got map[string]string
	found, err := store.GetJSON(ctx, h, KindRecord.Keys.Patterns, "live/livestream.m3u8", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]string{"record": "task_created", "update": "2025-03-01T12:00:00Z"}, got)

	// The outcome shares the hash with the enable switch without touching it.
	on, err := c.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}
