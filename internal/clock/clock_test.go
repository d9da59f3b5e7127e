// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), Real{}, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, Real{}, time.Hour), context.Canceled)
}

func TestFake(t *testing.T) {
	t0 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFake(t0)
	assert.Equal(t, t0, f.Now())
	f.Advance(30 * time.Second)
	assert.Equal(t, t0.Add(30*time.Second), f.Now())
	f.Set(t0)
	assert.Equal(t, t0, f.Now())
}
