// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/livegate/internal/fsutil"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg/ffmpegtest"
	"github.com/ManuGH/livegate/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var banner = []string{
	"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'a.mp4':",
	"  Duration: 00:00:10.00, start: 0.000000, bitrate: 900 kb/s",
	"  Stream #0:0(und): Video: h264 (High) (avc1 / 0x31637661), yuv420p, 640x360, 800 kb/s, 25 fps",
	"  Stream #0:1(und): Audio: aac (LC) (mp4a / 0x6134706D), 48000 Hz, stereo, fltp, 96 kb/s",
}

type libraryHarness struct {
	lib       *Library
	configs   *ConfigStore
	launcher  *ffmpegtest.Launcher
	uploadDir string
	dir       string
}

func newLibrary(t *testing.T) *libraryHarness {
	t.Helper()
	_, h := testutil.NewStore(t)
	root := t.TempDir()
	launcher := ffmpegtest.NewLauncher()
	launcher.OnStart = func(p *ffmpegtest.Process) {
		for _, line := range banner {
			p.WriteStderr(line)
		}
		p.Finish(0)
	}
	configs := NewConfigStore(VirtualLive(), h)
	lib, err := NewLibrary(filepath.Join(root, "upload"), filepath.Join(root, "vlive"), configs, launcher)
	require.NoError(t, err)
	return &libraryHarness{
		lib:       lib,
		configs:   configs,
		launcher:  launcher,
		uploadDir: filepath.Join(root, "upload"),
		dir:       filepath.Join(root, "vlive"),
	}
}

func (lh *libraryHarness) upload(t *testing.T, name, body string) SourceFile {
	t.Helper()
	f, err := lh.lib.Upload(name, strings.NewReader(body))
	require.NoError(t, err)
	return f
}

func TestLibrary_Upload(t *testing.T) {
	lh := newLibrary(t)

	f := lh.upload(t, "holiday.MP4", "movie")
	_, err := uuid.Parse(f.UUID)
	require.NoError(t, err)
	assert.Equal(t, "holiday.MP4", f.Name)
	assert.Equal(t, SourceUpload, f.Type)
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, filepath.Join(lh.uploadDir, f.UUID+".mp4"), f.Target)
	data, err := os.ReadFile(f.Target)
	require.NoError(t, err)
	assert.Equal(t, "movie", string(data))

	_, err = lh.lib.Upload("notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestLibrary_SelectMovesAndInspects(t *testing.T) {
	lh := newLibrary(t)
	ctx := context.Background()
	f := lh.upload(t, "a.mp4", "movie")

	selected, err := lh.lib.Select(ctx, "wx", []SourceFile{f})
	require.NoError(t, err)
	require.Len(t, selected, 1)

	want := filepath.Join(lh.dir, f.UUID+".mp4")
	assert.Equal(t, want, selected[0].Target)
	assert.FileExists(t, want)
	assert.NoFileExists(t, f.Target)
	assert.Equal(t, ffmpeg.InspectArgs(f.Target), lh.launcher.Last().Spec.Args)

	require.NotNil(t, selected[0].Format)
	assert.Equal(t, "10.000000", selected[0].Format.Duration)
	assert.True(t, selected[0].Format.HasVideo)
	assert.True(t, selected[0].Format.HasAudio)
	require.NotNil(t, selected[0].Video)
	assert.Equal(t, 640, selected[0].Video.Width)
	require.NotNil(t, selected[0].Audio)
	assert.Equal(t, "48000", selected[0].Audio.SampleRate)

	cfg, err := lh.configs.Get(ctx, "wx")
	require.NoError(t, err)
	assert.Equal(t, selected, cfg.Files)
	assert.False(t, cfg.Enabled)
}

func TestLibrary_SelectRemovesReplacedFiles(t *testing.T) {
	lh := newLibrary(t)
	ctx := context.Background()

	first, err := lh.lib.Select(ctx, "wx", []SourceFile{lh.upload(t, "a.mp4", "a")})
	require.NoError(t, err)
	require.FileExists(t, first[0].Target)

	second, err := lh.lib.Select(ctx, "wx", []SourceFile{lh.upload(t, "b.flv", "b")})
	require.NoError(t, err)

	assert.NoFileExists(t, first[0].Target)
	assert.FileExists(t, second[0].Target)
	assert.Equal(t, ".flv", filepath.Ext(second[0].Target))
}

func TestLibrary_SelectConfinesUploads(t *testing.T) {
	lh := newLibrary(t)
	ctx := context.Background()
	outside := filepath.Join(t.TempDir(), "secret.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	for _, target := range []string{outside, "../vlive/x.mp4", filepath.Join(lh.uploadDir, "..", "escape.mp4")} {
		_, err := lh.lib.Select(ctx, "wx", []SourceFile{{UUID: uuid.NewString(), Target: target}})
		require.ErrorIs(t, err, ErrInvalidSource, target)
	}
	_, err := lh.lib.Select(ctx, "wx", []SourceFile{{UUID: uuid.NewString(), Target: outside}})
	assert.ErrorIs(t, err, fsutil.ErrEscapesRoot)

	assert.FileExists(t, outside, "files outside the upload dir are never touched")
	assert.Empty(t, lh.launcher.Started())
	_, err = lh.configs.Get(ctx, "wx")
	assert.ErrorIs(t, err, ErrPlatformNotFound)
}

func TestLibrary_SelectRejects(t *testing.T) {
	lh := newLibrary(t)
	ctx := context.Background()

	_, err := lh.lib.Select(ctx, "wx", nil)
	require.ErrorIs(t, err, ErrInvalidPlatformConfig)
	assert.Contains(t, err.Error(), "no files")

	_, err = lh.lib.Select(ctx, " ", []SourceFile{{UUID: uuid.NewString(), Target: "a.mp4"}})
	assert.ErrorIs(t, err, ErrInvalidPlatformConfig)

	_, err = lh.lib.Select(ctx, "wx", []SourceFile{{UUID: "../x", Target: "a.mp4"}})
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = lh.lib.Select(ctx, "wx", []SourceFile{{UUID: uuid.NewString(), Type: SourceStream, Target: "ftp://host/a.flv"}})
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = lh.lib.Select(ctx, "wx", []SourceFile{{UUID: uuid.NewString(), Target: "missing.mp4"}})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestLibrary_SelectFailedInspectionRemovesUpload(t *testing.T) {
	lh := newLibrary(t)
	ctx := context.Background()
	f := lh.upload(t, "a.ts", "garbage")
	lh.launcher.OnStart = func(p *ffmpegtest.Process) {
		p.WriteStderr(f.Target + ": Invalid data found when processing input")
		p.Finish(1)
	}

	_, err := lh.lib.Select(ctx, "wx", []SourceFile{f})
	require.ErrorIs(t, err, ErrInvalidSource)
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.NoFileExists(t, f.Target)
	entries, err := os.ReadDir(lh.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLibrary_SelectStreamKeepsURL(t *testing.T) {
	lh := newLibrary(t)
	stream := SourceFile{UUID: uuid.NewString(), Type: SourceStream, Target: "rtmp://origin/live/cam"}

	selected, err := lh.lib.Select(context.Background(), "wx", []SourceFile{stream})
	require.NoError(t, err)
	assert.Equal(t, "rtmp://origin/live/cam", selected[0].Target)
	assert.Equal(t, ffmpeg.InspectArgs("rtmp://origin/live/cam"), lh.launcher.Last().Spec.Args)
}
