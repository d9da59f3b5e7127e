// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package objstore uploads archived segments and playlists to S3-compatible storage.
package objstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrBucketMissing is returned by EnsureBucket when the bucket does not exist.
var ErrBucketMissing = errors.New("bucket does not exist")

// Uploader writes objects into a bucket.
type Uploader interface {
	// PutFile uploads the file at path and returns its size.
	PutFile(ctx context.Context, bucket, key, path, contentType string) (int64, error)
	PutBytes(ctx context.Context, bucket, key string, data []byte, contentType string) error
	EnsureBucket(ctx context.Context, bucket string) error
}

// ContentTypeFor picks a media type by the key's extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".ts":
		return "video/MP2T"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mp4":
		return "video/mp4"
	case ".flv":
		return "video/x-flv"
	default:
		return "application/octet-stream"
	}
}
