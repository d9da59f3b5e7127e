// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/livegate/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testDeps() Deps {
	return Deps{
		Logger: log.WithComponent("test"),
		APIHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
	}
}

func startManager(t *testing.T, cfg ServerConfig, deps Deps) (*manager, context.CancelFunc, <-chan error) {
	t.Helper()
	m, err := NewManager(cfg, deps)
	require.NoError(t, err)
	mgr := m.(*manager)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	t.Cleanup(cancel)
	return mgr, cancel, done
}

func get(t *testing.T, addr net.Addr, path string) string {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", addr, path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(ServerConfig{}, Deps{APIHandler: http.NotFoundHandler()})
	assert.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(ServerConfig{}, Deps{Logger: log.WithComponent("test")})
	assert.ErrorIs(t, err, ErrMissingAPIHandler)

	_, err = NewManager(ServerConfig{}, Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()})
	assert.ErrorIs(t, err, ErrMissingLogger, "a disabled logger counts as missing")
}

func TestManager_ServesAndShutsDown(t *testing.T) {
	mgr, cancel, done := startManager(t, ServerConfig{ListenAddr: "127.0.0.1:0", ShutdownTimeout: 2 * time.Second}, testDeps())

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	addr, err := mgr.APIAddr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", get(t, addr, "/"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("manager did not stop")
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestManager_MetricsListener(t *testing.T) {
	deps := testDeps()
	deps.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "metrics")
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsAddr := ln.Addr()
	require.NoError(t, ln.Close())

	mgr, cancel, done := startManager(t, ServerConfig{ListenAddr: "127.0.0.1:0", MetricsAddr: metricsAddr.String()}, deps)
	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	_, err = mgr.APIAddr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "metrics", get(t, metricsAddr, "/metrics"))

	cancel()
	require.NoError(t, <-done)
	http.DefaultClient.CloseIdleConnections()
}

func TestManager_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	m, err := NewManager(ServerConfig{ListenAddr: ln.Addr().String()}, testDeps())
	require.NoError(t, err)
	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen API")
}

func TestManager_ShutdownHooksLIFO(t *testing.T) {
	mgr, cancel, done := startManager(t, ServerConfig{ListenAddr: "127.0.0.1:0"}, testDeps())

	var mu sync.Mutex
	var order []string
	hook := func(name string, err error) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		}
	}
	mgr.RegisterShutdownHook("redis", hook("redis", nil))
	mgr.RegisterShutdownHook("tracer", hook("tracer", errors.New("flush failed")))
	mgr.RegisterShutdownHook("workers", hook("workers", nil))

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	_, err := mgr.APIAddr(ctx)
	require.NoError(t, err)

	cancel()
	err = <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook tracer")
	assert.Equal(t, []string{"workers", "tracer", "redis"}, order)

	assert.NoError(t, mgr.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(ServerConfig{ListenAddr: "127.0.0.1:0"}, testDeps())
	require.NoError(t, err)
	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}
