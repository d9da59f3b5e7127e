// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldSegmentID     = "segment_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldTaskUUID      = "task_uuid"
	FieldOwner         = "owner"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldKind      = "kind"
	FieldPID       = "task_pid"
	FieldExitCode  = "exit_code"

	// Task fields
	FieldPlatform  = "platform"
	FieldStreamKey = "stream_key"
	FieldInput     = "input"
	FieldOutput    = "output"

	// Archive fields
	FieldSourceURL = "m3u8_url"
	FieldObjectKey = "object_key"
	FieldBucket    = "bucket"
	FieldSize      = "size"
	FieldFiles     = "files"

	// Path / URL fields
	FieldPath         = "path"
	FieldPlaylistPath = "playlist_path"

	// HTTP fields
	FieldMethod   = "method"
	FieldRoute    = "route"
	FieldStatus   = "status"
	FieldDuration = "duration_ms"
)
