// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keepGlobalLevel(t *testing.T) {
	t.Helper()
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}

func TestHolder_ReloadAppliesAndNotifies(t *testing.T) {
	keepGlobalLevel(t)
	path := writeConfig(t, "logLevel: info\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "warn", h.Get().LogLevel)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	select {
	case got := <-ch:
		assert.Equal(t, "warn", got.LogLevel)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestHolder_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "mode: production\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	require.NoError(t, os.WriteFile(path, []byte("mode: staging\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, ModeProduction, h.Get().Mode)
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	keepGlobalLevel(t)
	path := writeConfig(t, "logLevel: info\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	h.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Get().LogLevel == "debug"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	h := NewHolder(defaults(), NewLoader("", ""))
	require.NoError(t, h.StartWatcher(context.Background()))
}
