// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/metrics"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var errUpload = errors.New("upload failed")

func fail() error { return errUpload }
func ok() error   { return nil }

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	c := clock.NewFake(time.Unix(1700000000, 0))
	cb := NewCircuitBreaker("test_trip", 3, 10*time.Second, WithClock(c))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errUpload)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(fail), errUpload)
	assert.Equal(t, StateOpen, cb.State())
	assert.InDelta(t, 1, promtest.ToFloat64(metrics.BreakerTripsTotal.WithLabelValues("test_trip", "threshold_exceeded")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(metrics.BreakerState.WithLabelValues("test_trip", "open")), 0)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("test_reset", 2, time.Second)
	_ = cb.Execute(fail)
	assert.NoError(t, cb.Execute(ok))
	_ = cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	c := clock.NewFake(time.Unix(1700000000, 0))
	cb := NewCircuitBreaker("test_probe", 1, 10*time.Second, WithClock(c))
	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())

	c.Advance(10 * time.Second)
	assert.ErrorIs(t, cb.Execute(fail), errUpload)
	assert.Equal(t, StateOpen, cb.State(), "failed probe reopens")
	assert.InDelta(t, 1, promtest.ToFloat64(metrics.BreakerTripsTotal.WithLabelValues("test_probe", "half_open_failure")), 0)

	c.Advance(10 * time.Second)
	assert.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	c := clock.NewFake(time.Unix(1700000000, 0))
	cb := NewCircuitBreaker("test_single", 1, time.Second, WithClock(c))
	_ = cb.Execute(fail)
	c.Advance(time.Second)

	inner := errors.New("unset")
	outer := cb.Execute(func() error {
		inner = cb.Execute(ok)
		return nil
	})
	assert.NoError(t, outer)
	assert.ErrorIs(t, inner, ErrCircuitOpen, "a second call during the probe is rejected")
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	cb := NewCircuitBreaker("test_ignore", 1, time.Second)
	isCanceled := func(err error) bool { return errors.Is(err, context.Canceled) }

	err := cb.Execute(func() error { return context.Canceled }, isCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}
