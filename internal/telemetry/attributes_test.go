// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func asMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestHTTPAttributes(t *testing.T) {
	got := asMap(HTTPAttributes("POST", "/terraform/v1/hooks/srs/hls", 200))
	assert.Equal(t, map[string]any{
		HTTPMethodKey:     "POST",
		HTTPRouteKey:      "/terraform/v1/hooks/srs/hls",
		HTTPStatusCodeKey: int64(200),
	}, got)
}

func TestArchiveAttributes(t *testing.T) {
	tests := []struct {
		name             string
		session, segment string
		wantLen          int
	}{
		{"kind only", "", "", 1},
		{"session", "s", "", 2},
		{"segment", "s", "t", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := ArchiveAttributes("vod", tt.session, tt.segment)
			assert.Len(t, attrs, tt.wantLen)
			assert.Equal(t, "vod", asMap(attrs)[ArchiveKindKey])
		})
	}
}

func TestStoredAttributes(t *testing.T) {
	got := asMap(StoredAttributes("sess/seg.ts", 1024))
	assert.Equal(t, "sess/seg.ts", got[ArchiveObjectKey])
	assert.Equal(t, int64(1024), got[ArchiveSizeKey])
}

func TestTaskAttributes(t *testing.T) {
	got := asMap(TaskAttributes("forward", "wx", "wx@live"))
	assert.Equal(t, "forward", got[TaskKindKey])
	assert.Equal(t, "wx", got[TaskPlatformKey])
	assert.Equal(t, "wx@live", got[TaskStreamKey])
}

func TestErrorAttributes(t *testing.T) {
	got := asMap(ErrorAttributes(errors.New("boom"), "upload"))
	assert.Equal(t, true, got[ErrorKey])
	assert.Equal(t, "upload", got[ErrorTypeKey])
}
