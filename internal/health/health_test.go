// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/livegate/internal/config"
	"github.com/ManuGH/livegate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	m := NewManager("v1.2.3")
	assert.NotNil(t, m)
	assert.Equal(t, "v1.2.3", m.version)
	assert.Empty(t, m.checkers)
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp = m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name    string
		checks  []Status
		ready   bool
		status  Status
		verbose bool
		listed  bool
	}{
		{name: "no checkers", ready: true, status: StatusHealthy},
		{name: "all healthy", checks: []Status{StatusHealthy, StatusHealthy}, ready: true, status: StatusHealthy},
		{name: "all healthy verbose", checks: []Status{StatusHealthy}, ready: true, status: StatusHealthy, verbose: true, listed: true},
		{name: "degraded", checks: []Status{StatusHealthy, StatusDegraded}, ready: true, status: StatusDegraded},
		{name: "unhealthy wins", checks: []Status{StatusUnhealthy, StatusDegraded}, ready: false, status: StatusUnhealthy, listed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			for i, s := range tt.checks {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background(), tt.verbose)
			assert.Equal(t, tt.ready, resp.Ready)
			assert.Equal(t, tt.status, resp.Status)
			if tt.listed {
				assert.Len(t, resp.Checks, len(tt.checks))
			} else {
				assert.Nil(t, resp.Checks)
			}
		})
	}
}

func TestManager_ServeHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "test", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	// Liveness stays 200 even when a component is down.
	w = httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 1)
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   int
		ready  bool
	}{
		{"healthy", StatusHealthy, http.StatusOK, true},
		{"degraded", StatusDegraded, http.StatusOK, true},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			m.RegisterChecker(&mockChecker{name: "test", status: tt.status})

			w := httptest.NewRecorder()
			m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.code, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.ready, resp.Ready)
		})
	}
}

func TestManager_EncodingError(t *testing.T) {
	m := NewManager("v1.0.0")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	assert.NotPanics(t, func() {
		m.ServeHealth(&brokenWriter{header: make(http.Header)}, req)
		m.ServeReady(&brokenWriter{header: make(http.Header)}, req)
	})
}

func TestRedisChecker(t *testing.T) {
	mr, h := testutil.NewStore(t)
	c := NewRedisChecker(h)
	assert.Equal(t, "redis", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	mr.SetError("LOADING")
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestWritableDirChecker(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name   string
		path   string
		status Status
		err    string
	}{
		{"writable", dir, StatusHealthy, ""},
		{"missing", filepath.Join(dir, "nope"), StatusUnhealthy, "does not exist"},
		{"file", file, StatusUnhealthy, "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWritableDirChecker("work_dir", tt.path)
			res := c.Check(context.Background())
			assert.Equal(t, tt.status, res.Status)
			assert.Contains(t, res.Error, tt.err)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "probe file must be removed")
}

func TestBinaryChecker(t *testing.T) {
	bin, err := os.Executable()
	require.NoError(t, err)

	res := NewBinaryChecker("ffmpeg", bin).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	res = NewBinaryChecker("ffmpeg", "/nonexistent/ffmpeg-binary").Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestFuncChecker(t *testing.T) {
	c := NewFuncChecker("loops", func(context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded, Message: "restarting"}
	})
	assert.Equal(t, "loops", c.Name())
	assert.Equal(t, "restarting", c.Check(context.Background()).Message)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.AppConfig{}
	cfg.Archive.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.API.ListenAddr = ":8085"
	cfg.FFmpeg.Bin = "/nonexistent/ffmpeg-binary"

	require.NoError(t, PerformStartupChecks(context.Background(), cfg, stubPinger{}))
	assert.DirExists(t, cfg.Archive.WorkDir)

	err := PerformStartupChecks(context.Background(), cfg, stubPinger{err: errors.New("refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	cfg.API.ListenAddr = "8085"
	require.Error(t, PerformStartupChecks(context.Background(), cfg, nil))
}

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

// brokenWriter is a ResponseWriter that always fails to write.
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header       { return w.header }
func (w *brokenWriter) Write([]byte) (int, error) { return 0, assert.AnError }
func (w *brokenWriter) WriteHeader(int)           {}
