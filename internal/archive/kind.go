// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"errors"

	"github.com/ManuGH/livegate/internal/store"
)

var (
	// ErrUnknownAction is returned by Ingest for notifications of another kind.
	ErrUnknownAction = errors.New("archive: unknown action")
	// ErrQueueFull is returned by Submit when the ingest queue is saturated.
	ErrQueueFull = errors.New("archive: ingest queue full")
	// ErrSessionNotFound is returned by queries for unknown sessions.
	ErrSessionNotFound = errors.New("archive: session not found")
)

// Kind names an archival flavour and its keys.
type Kind struct {
	Name   string
	Action string
	Keys   store.ArchiveKeys
}

var (
	KindDVR    = Kind{Name: "dvr", Action: "on_dvr_file", Keys: store.DVRKeys}
	KindVOD    = Kind{Name: "vod", Action: "on_vod_file", Keys: store.VODKeys}
	KindRecord = Kind{Name: "record", Action: "on_record_file", Keys: store.RecordKeys}
)

// Kinds lists every archival kind in notification order.
func Kinds() []Kind {
	return []Kind{KindDVR, KindVOD, KindRecord}
}
