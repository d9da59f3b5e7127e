// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the gateway.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Archive attributes
	ArchiveKindKey     = "archive.kind"
	ArchiveSessionKey  = "archive.session"
	ArchiveSegmentKey  = "archive.segment"
	ArchiveObjectKey   = "archive.object_key"
	ArchiveSizeKey     = "archive.size"
	ArchiveSegmentsKey = "archive.segments"

	// Task attributes
	TaskKindKey     = "task.kind"
	TaskPlatformKey = "task.platform"
	TaskStreamKey   = "task.stream"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ArchiveAttributes describes a recording session, and a segment of it when
// segment is not empty.
func ArchiveAttributes(kind, session, segment string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs, attribute.String(ArchiveKindKey, kind))
	if session != "" {
		attrs = append(attrs, attribute.String(ArchiveSessionKey, session))
	}
	if segment != "" {
		attrs = append(attrs, attribute.String(ArchiveSegmentKey, segment))
	}
	return attrs
}

// StoredAttributes records where a segment ended up.
func StoredAttributes(key string, size int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ArchiveObjectKey, key),
		attribute.Int64(ArchiveSizeKey, size),
	}
}

// TaskAttributes creates task-related span attributes.
func TaskAttributes(kind, platform, stream string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskKindKey, kind),
		attribute.String(TaskPlatformKey, platform),
		attribute.String(TaskStreamKey, stream),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
