// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist renders archived segment lists as HLS media playlists.
package playlist

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ContentType is the MIME type of every rendered playlist.
const ContentType = "application/vnd.apple.mpegurl"

var (
	ErrNoDocument = errors.New("playlist: no metadata")
	ErrNoFiles    = errors.New("playlist: no files")
	ErrNoBucket   = errors.New("playlist: no bucket")
	ErrNoRegion   = errors.New("playlist: no region")
)

// Segment is one archived media segment.
type Segment struct {
	Key      string  // object key or final on-disk path
	TsID     string  // local segment id
	SeqNo    uint64  // media server sequence number
	Duration float64 // seconds
}

// Document is the archival metadata a playlist is rendered from.
type Document struct {
	Bucket string
	Region string
	Files  []Segment
}

// Options selects how segment URIs are written.
type Options struct {
	// Absolute writes https URLs. Domain, when set, replaces the bucket host.
	Absolute bool
	Domain   string
	// For relative URIs, UseKey writes Prefix+Key instead of Prefix+TsID+".ts".
	UseKey bool
	Prefix string
}

type kind string

const (
	kindVOD   kind = "VOD"
	kindEvent kind = "EVENT"
)

// BuildVOD renders a finished playlist terminated by #EXT-X-ENDLIST. The
// returned duration is the longest segment, which is also the target duration
// before rounding up.
func BuildVOD(doc *Document, opts Options) (contentType, body string, duration float64, err error) {
	return build(doc, opts, kindVOD)
}

// BuildEvent renders a playlist that may still grow. It has no end tag.
func BuildEvent(doc *Document, opts Options) (contentType, body string, duration float64, err error) {
	return build(doc, opts, kindEvent)
}

func build(doc *Document, opts Options, k kind) (string, string, float64, error) {
	if err := validate(doc, opts); err != nil {
		return "", "", 0, err
	}

	var duration float64
	for _, f := range doc.Files {
		duration = math.Max(duration, f.Duration)
	}

	lines := make([]string, 0, 7+3*len(doc.Files))
	lines = append(lines,
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-ALLOW-CACHE:YES",
		"#EXT-X-PLAYLIST-TYPE:"+string(k),
		fmt.Sprintf("#EXT-X-TARGETDURATION:%d", int64(math.Ceil(duration))),
		"#EXT-X-MEDIA-SEQUENCE:0",
	)

	for i, f := range doc.Files {
		// The last two segments are never checked for gaps.
		if i < len(doc.Files)-2 {
			if next := doc.Files[i+1]; f.SeqNo+1 != next.SeqNo {
				lines = append(lines, "#EXT-X-DISCONTINUITY")
			}
		}
		lines = append(lines,
			fmt.Sprintf("#EXTINF:%.2f, no desc", f.Duration),
			segmentURI(doc, f, opts),
		)
	}

	if k == kindVOD {
		lines = append(lines, "#EXT-X-ENDLIST")
	}
	return ContentType, strings.Join(lines, "\n"), duration, nil
}

func validate(doc *Document, opts Options) error {
	if doc == nil {
		return ErrNoDocument
	}
	if len(doc.Files) == 0 {
		return ErrNoFiles
	}
	if opts.Absolute && opts.Domain == "" {
		if doc.Bucket == "" {
			return ErrNoBucket
		}
		if doc.Region == "" {
			return ErrNoRegion
		}
	}
	return nil
}

func segmentURI(doc *Document, f Segment, opts Options) string {
	switch {
	case opts.Absolute && opts.Domain != "":
		return fmt.Sprintf("https://%s/%s", opts.Domain, f.Key)
	case opts.Absolute:
		return fmt.Sprintf("https://%s.cos.%s.myqcloud.com/%s", doc.Bucket, doc.Region, f.Key)
	case opts.UseKey:
		return opts.Prefix + f.Key
	default:
		return opts.Prefix + f.TsID + ".ts"
	}
}
