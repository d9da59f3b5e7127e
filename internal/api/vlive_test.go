// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg/ffmpegtest"
	"github.com/ManuGH/livegate/internal/task"
	"github.com/ManuGH/livegate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vliveHarness struct {
	*harness
	configs  *task.ConfigStore
	launcher *ffmpegtest.Launcher
	dir      string
}

func newVLiveHarness(t *testing.T) *vliveHarness {
	t.Helper()
	_, h := testutil.NewStore(t)
	root := t.TempDir()
	launcher := ffmpegtest.NewLauncher()
	launcher.OnStart = func(p *ffmpegtest.Process) {
		p.WriteStderr("Input #0, flv, from 'upload.flv':")
		p.WriteStderr("  Duration: 00:00:05.00, start: 0.000000, bitrate: 500 kb/s")
		p.WriteStderr("  Stream #0:0: Video: h264 (Main), yuv420p, 320x240, 400 kb/s, 25 fps")
		p.Finish(0)
	}

	vlive := task.VirtualLive()
	configs := task.NewConfigStore(vlive, h)
	lib, err := task.NewLibrary(filepath.Join(root, "upload"), filepath.Join(root, "vlive"), configs, launcher)
	require.NoError(t, err)

	srv := New(Deps{
		Store:   h,
		Tasks:   []task.Kind{task.Forward(h, "127.0.0.1"), vlive},
		Library: lib,
		Clock:   clock.NewFake(epoch),
	})
	return &vliveHarness{
		harness:  &harness{store: h, handler: srv.Handler()},
		configs:  configs,
		launcher: launcher,
		dir:      filepath.Join(root, "vlive"),
	}
}

func (vh *vliveHarness) upload(t *testing.T, route, filename, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, route, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	vh.handler.ServeHTTP(w, req)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestVLiveUploadAndSource(t *testing.T) {
	vh := newVLiveHarness(t)

	w, resp := vh.upload(t, "/terraform/v1/ffmpeg/vlive/upload/clip.flv", "clip.flv", "flvdata")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var uploaded task.SourceFile
	require.NoError(t, json.Unmarshal(resp.Data, &uploaded))
	assert.Equal(t, "clip.flv", uploaded.Name)
	assert.Equal(t, int64(7), uploaded.Size)
	require.FileExists(t, uploaded.Target)

	body, err := json.Marshal(sourceRequest{Platform: "wx", Files: []task.SourceFile{uploaded}})
	require.NoError(t, err)
	w, resp = vh.do(t, http.MethodPost, "/terraform/v1/ffmpeg/vlive/source", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var selected sourceResponse
	require.NoError(t, json.Unmarshal(resp.Data, &selected))
	assert.Equal(t, "wx", selected.Platform)
	require.Len(t, selected.Files, 1)
	assert.Equal(t, filepath.Join(vh.dir, uploaded.UUID+".flv"), selected.Files[0].Target)
	require.NotNil(t, selected.Files[0].Video)
	assert.Equal(t, 320, selected.Files[0].Video.Width)
	assert.NoFileExists(t, uploaded.Target)

	data, err := os.ReadFile(selected.Files[0].Target)
	require.NoError(t, err)
	assert.Equal(t, "flvdata", string(data))

	cfg, err := vh.configs.Get(context.Background(), "wx")
	require.NoError(t, err)
	assert.Equal(t, selected.Files, cfg.Files)
}

func TestVLiveUpload_Rejects(t *testing.T) {
	vh := newVLiveHarness(t)

	w, resp := vh.upload(t, "/terraform/v1/ffmpeg/vlive/upload/clip.flv", "other.flv", "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeInvalid, resp.Code)

	w, _ = vh.upload(t, "/terraform/v1/ffmpeg/vlive/upload/readme.txt", "readme.txt", "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = vh.upload(t, "/terraform/v1/ffmpeg/forward/upload/clip.flv", "clip.flv", "x")
	assert.Equal(t, http.StatusBadRequest, w.Code, "forward takes no files")

	w, _ = vh.do(t, http.MethodPost, "/terraform/v1/ffmpeg/vlive/upload/clip.flv", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "not multipart")
}

func TestVLiveSource_Rejects(t *testing.T) {
	vh := newVLiveHarness(t)
	outside := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	w, resp := vh.do(t, http.MethodPost, "/terraform/v1/ffmpeg/vlive/source", `{"platform":"wx","files":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(resp.Data), "no files")

	body, err := json.Marshal(sourceRequest{Platform: "wx", Files: []task.SourceFile{{UUID: "5f0c8f0e-8a55-4c3e-9d55-0d7f8f1c2b3a", Target: outside}}})
	require.NoError(t, err)
	w, _ = vh.do(t, http.MethodPost, "/terraform/v1/ffmpeg/vlive/source", string(body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.FileExists(t, outside)
	assert.Empty(t, vh.launcher.Started())
}

func TestVLiveSecret_NeedsFiles(t *testing.T) {
	vh := newVLiveHarness(t)

	w, resp := vh.do(t, http.MethodPost, "/terraform/v1/ffmpeg/vlive/secret",
		`{"action":"update","platform":"wx","enabled":true,"server":"rtmp://a","secret":"k"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(resp.Data), "no files")
}
