// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

const prefix = "LIVEGATE_"

// StreamActive maps "vhost/app/stream" to the publish record of a live stream.
const StreamActive = prefix + "STREAM_ACTIVE"

// AuthSecret holds "pubSecret", the token publishers must present.
const AuthSecret = prefix + "AUTH_SECRET"

// TaskKeys names the hashes owned by one task family.
type TaskKeys struct {
	Config string // platform -> PlatformConfig
	Map    string // platform -> source id
	Stream string // platform@source -> TaskRecord
	Code   string // platform@source -> TaskExitCode
	Frame  string // platform@source -> TaskFrame
}

// TaskFamily returns the key set of the named task family.
func TaskFamily(name string) TaskKeys {
	p := prefix + name + "_"
	return TaskKeys{
		Config: p + "CONFIG",
		Map:    p + "MAP",
		Stream: p + "STREAM",
		Code:   p + "CODE",
		Frame:  p + "FRAME",
	}
}

// ArchiveKeys names the hashes owned by one archival kind.
type ArchiveKeys struct {
	Active   string // m3u8 url -> ActiveMarker
	Local    string // m3u8 url -> LocalBuffer
	Uploaded string // session uuid -> UploadedSet
	Metadata string // session uuid -> Metadata
	Patterns string // "all" -> "true" enables archiving; m3u8 url -> last hook outcome
}

// ArchiveFamily returns the key set of the named archival kind.
func ArchiveFamily(name string) ArchiveKeys {
	p := prefix + name + "_"
	return ArchiveKeys{
		Active:   p + "M3U8_ACTIVE",
		Local:    p + "M3U8_LOCAL",
		Uploaded: p + "M3U8_UPLOADED",
		Metadata: p + "M3U8_METADATA",
		Patterns: p + "PATTERNS",
	}
}

var (
	ForwardKeys = TaskFamily("FORWARD")
	VLiveKeys   = TaskFamily("VLIVE")

	DVRKeys    = ArchiveFamily("DVR")
	VODKeys    = ArchiveFamily("VOD")
	RecordKeys = ArchiveFamily("RECORD")
)
