// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskStartsTotal counts encoder processes spawned per task family.
	TaskStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_task_starts_total",
		Help: "Total encoder processes started",
	}, []string{"kind"})

	// TaskResetsTotal counts dead tasks scheduled for restart.
	TaskResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_task_resets_total",
		Help: "Total dead encoder tasks reset for restart",
	}, []string{"kind"})

	// TaskCleanupsTotal counts removed task records by reason (disabled, idle).
	TaskCleanupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_task_cleanups_total",
		Help: "Total task records removed",
	}, []string{"kind", "reason"})

	// TaskStartErrorsTotal counts encoder spawn failures.
	TaskStartErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_task_start_errors_total",
		Help: "Total encoder spawn failures",
	}, []string{"kind"})

	// TasksRunning tracks encoder processes owned by this instance.
	TasksRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livegate_tasks_running",
		Help: "Encoder processes currently owned by this instance",
	}, []string{"kind"})

	// SegmentsIngestedTotal counts accepted segment notifications.
	SegmentsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_segments_ingested_total",
		Help: "Total segment notifications staged",
	}, []string{"kind"})

	// SegmentsStoredTotal counts segments moved to their final destination.
	SegmentsStoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_segments_stored_total",
		Help: "Total segments uploaded or moved to final storage",
	}, []string{"kind"})

	// SegmentsMissingTotal counts staged files that vanished before upload.
	SegmentsMissingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_segments_missing_total",
		Help: "Total staged segments missing at upload time",
	}, []string{"kind"})

	// SegmentBytesTotal sums the size of stored segments.
	SegmentBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_segment_bytes_total",
		Help: "Total bytes of stored segments",
	}, []string{"kind"})

	// SegmentStoreDuration tracks upload or move latency.
	SegmentStoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livegate_segment_store_duration_seconds",
		Help:    "Duration of segment upload or move",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"kind"})

	// SessionsFinalizedTotal counts finished archival sessions.
	SessionsFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_sessions_finalized_total",
		Help: "Total archival sessions finalized",
	}, []string{"kind"})

	// SessionsActive tracks archival sessions with a live marker.
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livegate_sessions_active",
		Help: "Archival sessions currently accumulating segments",
	}, []string{"kind"})

	// LoopRestartsTotal counts supervisor loops restarted after an error.
	LoopRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_loop_restarts_total",
		Help: "Total worker loops restarted after a failed tick",
	}, []string{"loop"})

	// BreakerState is 1 for the current state of each breaker, 0 otherwise.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livegate_breaker_state",
		Help: "Circuit breaker state (1 for the active state)",
	}, []string{"breaker", "state"})

	// BreakerTripsTotal counts transitions into the open state.
	BreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livegate_breaker_trips_total",
		Help: "Total circuit breaker trips",
	}, []string{"breaker", "reason"})
)

var breakerStates = []string{"closed", "open", "half-open"}

// SetBreakerState marks state as the active state of breaker.
func SetBreakerState(breaker, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		BreakerState.WithLabelValues(breaker, s).Set(v)
	}
}
