// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/objstore"
	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/resilience"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// Destination is where stored segments and the finished playlist go.
type Destination interface {
	// Store moves the staged segment of session to its final location.
	Store(ctx context.Context, session string, seg Segment) (key string, size int64, err error)
	// Publish writes the finished playlist of session.
	Publish(ctx context.Context, session string, body []byte) error
	// TracksUploads reports whether stored segments go into the upload ledger.
	TracksUploads() bool
	// Location is the bucket and region recorded in new metadata.
	Location() (bucket, region string)
}

// ObjectDestination uploads to an S3-compatible bucket under "<session>/".
// Uploads go through a circuit breaker so an unreachable store fails fast
// and segments stay staged for the next tick.
type ObjectDestination struct {
	uploader objstore.Uploader
	bucket   string
	region   string
	breaker  *resilience.CircuitBreaker
}

func NewObjectDestination(u objstore.Uploader, bucket, region string, breaker *resilience.CircuitBreaker) *ObjectDestination {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("objstore."+bucket, 0, 0)
	}
	return &ObjectDestination{uploader: u, bucket: bucket, region: region, breaker: breaker}
}

func (d *ObjectDestination) Store(ctx context.Context, session string, seg Segment) (string, int64, error) {
	key := path.Join(session, seg.TsID+".ts")
	var size int64
	err := d.breaker.Execute(func() error {
		var err error
		size, err = d.uploader.PutFile(ctx, d.bucket, key, seg.TsFile, objstore.ContentTypeFor(key))
		return err
	}, isLocalError)
	if err != nil {
		return "", 0, err
	}
	return key, size, nil
}

func (d *ObjectDestination) Publish(ctx context.Context, session string, body []byte) error {
	return d.breaker.Execute(func() error {
		return d.uploader.PutBytes(ctx, d.bucket, path.Join(session, "index.m3u8"), body, playlist.ContentType)
	}, isLocalError)
}

// isLocalError reports failures that say nothing about the remote store.
func isLocalError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, os.ErrNotExist)
}

func (d *ObjectDestination) TracksUploads() bool { return true }

func (d *ObjectDestination) Location() (string, string) { return d.bucket, d.region }

// DiskDestination keeps recordings under "<root>/record/<session>/" and
// transmuxes the finished playlist to MP4.
type DiskDestination struct {
	root     string
	launcher ffmpeg.Launcher
	logger   zerolog.Logger
}

func NewDiskDestination(root string, launcher ffmpeg.Launcher) *DiskDestination {
	return &DiskDestination{root: root, launcher: launcher, logger: log.WithComponent("archive.record")}
}

func (d *DiskDestination) Store(_ context.Context, session string, seg Segment) (string, int64, error) {
	info, err := os.Stat(seg.TsFile)
	if err != nil {
		return "", 0, err
	}
	key := path.Join("record", session, seg.TsID+".ts")
	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", 0, fmt.Errorf("create record dir: %w", err)
	}
	if err := os.Rename(seg.TsFile, dst); err != nil {
		return "", 0, fmt.Errorf("move segment: %w", err)
	}
	return key, info.Size(), nil
}

func (d *DiskDestination) Publish(ctx context.Context, session string, body []byte) error {
	dir := filepath.Join(d.root, "record", session)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	hls := filepath.Join(dir, "index.m3u8")
	mp4 := filepath.Join(dir, "index.mp4")
	if err := renameio.WriteFile(hls, body, 0o644); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}

	logger := d.logger.With().Str(log.FieldSessionID, session).Str(log.FieldPlaylistPath, hls).Logger()
	logger.Info().Str(log.FieldEvent, "archive.transmux_start").Str(log.FieldOutput, mp4).Msg("transmuxing recording")
	if err := ffmpeg.Run(ctx, d.launcher, ffmpeg.Spec{Args: ffmpeg.TransmuxArgs(hls, mp4)}, logger); err != nil {
		return fmt.Errorf("transmux %s: %w", session, err)
	}
	return nil
}

func (d *DiskDestination) TracksUploads() bool { return false }

func (d *DiskDestination) Location() (string, string) { return "", "" }
