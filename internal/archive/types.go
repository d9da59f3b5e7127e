// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"time"

	"github.com/ManuGH/livegate/internal/playlist"
)

// Params identifies the published stream a segment belongs to.
type Params struct {
	Vhost  string `json:"vhost,omitempty"`
	App    string `json:"app"`
	Stream string `json:"stream"`
	Param  string `json:"param,omitempty"`
}

// Notification announces one freshly written HLS segment.
type Notification struct {
	Action    string  `json:"action"`
	File      string  `json:"file"`
	Duration  float64 `json:"duration"`
	SeqNo     uint64  `json:"seqno"`
	SourceURL string  `json:"m3u8_url"`
	URL       string  `json:"url"`
	Params    Params  `json:"params"`
}

// ActiveMarker is present while a source playlist is being archived. Its
// UUID names the recording session.
type ActiveMarker struct {
	Update time.Time `json:"update"`
	UUID   string    `json:"uuid"`
}

// Segment is a staged segment awaiting storage.
type Segment struct {
	Notification
	TsID   string `json:"tsid"`
	TsFile string `json:"tsfile"`
}

// LocalBuffer lists the staged segments of a source playlist. UUIDs keeps
// every session the source ever produced.
type LocalBuffer struct {
	N      int        `json:"nn"`
	Update time.Time  `json:"update"`
	Done   *time.Time `json:"done"`
	UUID   string     `json:"uuid"`
	UUIDs  []string   `json:"uuids"`
	Files  []Segment  `json:"files"`
}

// UploadedFile is a segment stored in the object store.
type UploadedFile struct {
	Segment
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// UploadedSet is the upload ledger of a session.
type UploadedSet struct {
	N      int            `json:"nn"`
	Update time.Time      `json:"update"`
	UUID   string         `json:"uuid"`
	Files  []UploadedFile `json:"files"`
}

// MetaFile is one stored segment as listed in the playlist metadata.
type MetaFile struct {
	Key      string  `json:"key"`
	TsID     string  `json:"tsid"`
	URL      string  `json:"url"`
	SeqNo    uint64  `json:"seqno"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
}

// Metadata describes an archived session and its stored segments.
type Metadata struct {
	N         int        `json:"nn"`
	Update    time.Time  `json:"update"`
	Bucket    string     `json:"bucket,omitempty"`
	Region    string     `json:"region,omitempty"`
	UUID      string     `json:"uuid"`
	SourceURL string     `json:"m3u8_url,omitempty"`
	Vhost     string     `json:"vhost"`
	App       string     `json:"app"`
	Stream    string     `json:"stream"`
	Progress  bool       `json:"progress"`
	Done      *time.Time `json:"done"`
	Files     []MetaFile `json:"files"`
}

// Document converts the metadata into playlist input.
func (m *Metadata) Document() *playlist.Document {
	if m == nil {
		return nil
	}
	doc := &playlist.Document{Bucket: m.Bucket, Region: m.Region, Files: make([]playlist.Segment, 0, len(m.Files))}
	for _, f := range m.Files {
		doc.Files = append(doc.Files, playlist.Segment{Key: f.Key, TsID: f.TsID, SeqNo: f.SeqNo, Duration: f.Duration})
	}
	return doc
}

// Summary is the listing view of a session.
type Summary struct {
	UUID     string     `json:"uuid"`
	Bucket   string     `json:"bucket,omitempty"`
	Region   string     `json:"region,omitempty"`
	Vhost    string     `json:"vhost"`
	App      string     `json:"app"`
	Stream   string     `json:"stream"`
	Progress bool       `json:"progress"`
	Update   time.Time  `json:"update"`
	Done     *time.Time `json:"done,omitempty"`
	Segments int        `json:"nn"`
	Duration float64    `json:"duration"`
	Size     int64      `json:"size"`
}
