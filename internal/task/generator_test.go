// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func publish(t *testing.T, h store.Hash, s LiveStream) {
	t.Helper()
	require.NoError(t, store.SetJSON(context.Background(), h, store.StreamActive, s.Key(), s))
}

func saveConfig(t *testing.T, h store.Hash, kind Kind, cfg PlatformConfig) {
	t.Helper()
	require.NoError(t, NewConfigStore(kind, h).Save(context.Background(), cfg))
}

func loadRecord(t *testing.T, h store.Hash, kind Kind, key string) (Record, bool) {
	t.Helper()
	var rec Record
	found, err := store.GetJSON(context.Background(), h, kind.Keys.Stream, key, &rec)
	require.NoError(t, err)
	return rec, found
}

func TestForwardGenerate_NothingEnabled(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	kind := Forward(h, "127.0.0.1")

	publish(t, h, LiveStream{App: "live", Stream: "s1"})
	saveConfig(t, h, kind, PlatformConfig{Platform: "wx", Server: "rtmp://sink/live", Secret: "k"})

	require.NoError(t, NewGenerator(kind, h, clock.NewFake(epoch)).Generate(ctx))

	keys, err := h.HKeys(ctx, kind.Keys.Stream)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestForwardGenerate_FirstStreamWins(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	kind := Forward(h, "127.0.0.1")
	clk := clock.NewFake(epoch)
	gen := NewGenerator(kind, h, clk)

	a := LiveStream{App: "live", Stream: "a"}
	b := LiveStream{App: "live", Stream: "b"}
	publish(t, h, b)
	publish(t, h, a)
	saveConfig(t, h, kind, PlatformConfig{Platform: "wx", Enabled: true, Server: "rtmp://sink/live", Secret: "k"})

	require.NoError(t, gen.Generate(ctx))

	mapped, err := h.HGet(ctx, kind.Keys.Map, "wx")
	require.NoError(t, err)
	assert.Equal(t, a.Key(), mapped)

	rec, found := loadRecord(t, h, kind, RecordKey("wx", a.Key()))
	require.True(t, found)
	assert.Equal(t, "wx", rec.Platform)
	assert.Equal(t, "rtmp://127.0.0.1/live/a", rec.Input)
	assert.NotEmpty(t, rec.UUID)
	assert.Zero(t, rec.Task)
	assert.True(t, epoch.Equal(rec.Update))

	// The mapping holds on later ticks and the record keeps its identity.
	clk.Advance(time.Minute)
	require.NoError(t, gen.Generate(ctx))
	again, _ := loadRecord(t, h, kind, RecordKey("wx", a.Key()))
	assert.Equal(t, rec.UUID, again.UUID)

	_, found = loadRecord(t, h, kind, RecordKey("wx", b.Key()))
	assert.False(t, found)
}

func TestForwardGenerate_RemapsWhenRecordGone(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	kind := Forward(h, "127.0.0.1")

	s := LiveStream{App: "live", Stream: "a"}
	publish(t, h, s)
	saveConfig(t, h, kind, PlatformConfig{Platform: "wx", Enabled: true, Server: "rtmp://sink/live"})
	require.NoError(t, h.HSet(ctx, kind.Keys.Map, "wx", "__defaultVhost__/live/gone"))

	require.NoError(t, NewGenerator(kind, h, clock.NewFake(epoch)).Generate(ctx))

	mapped, err := h.HGet(ctx, kind.Keys.Map, "wx")
	require.NoError(t, err)
	assert.Equal(t, s.Key(), mapped)
	_, found := loadRecord(t, h, kind, RecordKey("wx", s.Key()))
	assert.True(t, found)
}

func TestForwardGenerate_EachPlatformIndependent(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	kind := Forward(h, "srs")

	s := LiveStream{App: "live", Stream: "a"}
	publish(t, h, s)
	saveConfig(t, h, kind, PlatformConfig{Platform: "wx", Enabled: true, Server: "rtmp://a"})
	saveConfig(t, h, kind, PlatformConfig{Platform: "bilibili", Enabled: true, Server: "rtmp://b"})
	saveConfig(t, h, kind, PlatformConfig{Platform: "kuaishou", Server: "rtmp://c"})

	require.NoError(t, NewGenerator(kind, h, clock.NewFake(epoch)).Generate(ctx))

	keys, err := h.HKeys(ctx, kind.Keys.Stream)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{RecordKey("wx", s.Key()), RecordKey("bilibili", s.Key())}, keys)
}

func TestVirtualLiveGenerate(t *testing.T) {
	ctx := context.Background()
	_, h := testutil.NewStore(t)
	kind := VirtualLive()
	gen := NewGenerator(kind, h, clock.NewFake(epoch))

	fileA := SourceFile{UUID: "file-a", Name: "a.mp4", Target: "/data/a.mp4"}
	fileB := SourceFile{UUID: "file-b", Name: "b.mp4", Target: "/data/b.mp4"}

	// Stored before any file was selected.
	require.NoError(t, store.SetJSON(ctx, h, kind.Keys.Config, "empty", PlatformConfig{Platform: "empty", Enabled: true, Server: "rtmp://x"}))
	saveConfig(t, h, kind, PlatformConfig{Platform: "wx", Enabled: true, Server: "rtmp://sink", Files: []SourceFile{fileA, fileB}})
	require.NoError(t, gen.Generate(ctx))

	rec, found := loadRecord(t, h, kind, RecordKey("wx", "file-a"))
	require.True(t, found)
	assert.Equal(t, "/data/a.mp4", rec.Input)
	assert.JSONEq(t, `{"uuid":"file-a","name":"a.mp4","target":"/data/a.mp4"}`, string(rec.Stream))

	_, err := h.HGet(ctx, kind.Keys.Map, "empty")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Selecting another file does not re-map while the old record lives.
	saveConfig(t, h, kind, PlatformConfig{Platform: "wx", Enabled: true, Server: "rtmp://sink", Files: []SourceFile{fileB}})
	require.NoError(t, gen.Generate(ctx))
	mapped, err := h.HGet(ctx, kind.Keys.Map, "wx")
	require.NoError(t, err)
	assert.Equal(t, "file-a", mapped)

	require.NoError(t, h.HDel(ctx, kind.Keys.Stream, RecordKey("wx", "file-a")))
	require.NoError(t, gen.Generate(ctx))
	mapped, err = h.HGet(ctx, kind.Keys.Map, "wx")
	require.NoError(t, err)
	assert.Equal(t, "file-b", mapped)
	rec, found = loadRecord(t, h, kind, RecordKey("wx", "file-b"))
	require.True(t, found)
	assert.Equal(t, "/data/b.mp4", rec.Input)
}
