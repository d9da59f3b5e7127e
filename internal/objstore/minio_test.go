// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method      string
	path        string
	contentType string
}

// fakeS3 answers just enough of the S3 protocol for single-part uploads and
// bucket probes.
func fakeS3(t *testing.T, buckets ...string) (*Minio, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")})
		mu.Unlock()

		switch r.Method {
		case http.MethodHead:
			name := strings.Trim(r.URL.Path, "/")
			for _, b := range buckets {
				if b == name {
					w.WriteHeader(http.StatusOK)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)

	m, err := NewMinio(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return m, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestMinio_PutFile(t *testing.T) {
	m, reqs := fakeS3(t)
	path := filepath.Join(t.TempDir(), "seg.ts")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	size, err := m.PutFile(context.Background(), "dvr", "sess/seg.ts", path, "")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	got := reqs()
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, http.MethodPut, last.method)
	assert.Equal(t, "/dvr/sess/seg.ts", last.path)
	assert.Equal(t, "video/MP2T", last.contentType)
}

func TestMinio_PutFileMissing(t *testing.T) {
	m, reqs := fakeS3(t)
	_, err := m.PutFile(context.Background(), "dvr", "k.ts", filepath.Join(t.TempDir(), "nope.ts"), "")
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, reqs())
}

func TestMinio_PutBytes(t *testing.T) {
	m, reqs := fakeS3(t)
	require.NoError(t, m.PutBytes(context.Background(), "vod", "sess/index.m3u8", []byte("#EXTM3U"), ""))

	got := reqs()
	require.NotEmpty(t, got)
	assert.Equal(t, "/vod/sess/index.m3u8", got[len(got)-1].path)
	assert.Equal(t, "application/vnd.apple.mpegurl", got[len(got)-1].contentType)
}

func TestMinio_EnsureBucket(t *testing.T) {
	m, _ := fakeS3(t, "dvr")
	require.NoError(t, m.EnsureBucket(context.Background(), "dvr"))
	assert.ErrorIs(t, m.EnsureBucket(context.Background(), "vod"), ErrBucketMissing)
}

func TestNewMinio_RequiresEndpoint(t *testing.T) {
	_, err := NewMinio(Config{})
	assert.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/MP2T", ContentTypeFor("a/b.TS"))
	assert.Equal(t, "application/vnd.apple.mpegurl", ContentTypeFor("index.m3u8"))
	assert.Equal(t, "video/mp4", ContentTypeFor("index.mp4"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("README"))
}
