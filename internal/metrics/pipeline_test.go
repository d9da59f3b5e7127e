// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/livegate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	metrics.TaskStartsTotal.WithLabelValues("forward").Inc()
	metrics.SegmentsIngestedTotal.WithLabelValues("dvr").Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `livegate_task_starts_total{kind="forward"}`)
	assert.Contains(t, string(body), `livegate_segments_ingested_total{kind="dvr"}`)
}

func TestCounters(t *testing.T) {
	c := metrics.TaskCleanupsTotal.WithLabelValues("vlive", "idle")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
