// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import "time"

// Assembler maintains the per-session metadata a playlist is built from.
type Assembler struct {
	Bucket string
	Region string
}

// New returns empty metadata for session, labelled from the first segment.
func (a Assembler) New(session string, seg Segment, now time.Time) *Metadata {
	return &Metadata{
		Update:    now,
		Bucket:    a.Bucket,
		Region:    a.Region,
		UUID:      session,
		SourceURL: seg.SourceURL,
		Vhost:     seg.Params.Vhost,
		App:       seg.Params.App,
		Stream:    seg.Params.Stream,
		Progress:  true,
		Files:     []MetaFile{},
	}
}

// Merge replaces any entry with the same segment id by file and appends it.
// A merged session is in progress again.
func (a Assembler) Merge(meta *Metadata, file MetaFile, now time.Time) {
	kept := meta.Files[:0:0]
	for _, f := range meta.Files {
		if f.TsID != file.TsID {
			kept = append(kept, f)
		}
	}
	meta.Files = append(kept, file)
	meta.N = len(meta.Files)
	meta.Update = now
	meta.Progress = true
	meta.Done = nil
}

// Finish marks meta as no longer progressing.
func (a Assembler) Finish(meta *Metadata, now time.Time) {
	meta.Progress = false
	meta.Done = &now
}
