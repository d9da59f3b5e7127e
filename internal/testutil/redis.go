// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/ManuGH/livegate/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewStore starts a miniredis server and returns a store bound to it. Both are
// closed when the test ends.
func NewStore(t testing.TB) (*miniredis.Miniredis, *store.Redis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisFromClient(client, zerolog.Nop())

	t.Cleanup(func() {
		_ = s.Close()
		mr.Close()
	})
	return mr, s
}
