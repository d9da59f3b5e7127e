// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/ManuGH/livegate/internal/api"
	"github.com/ManuGH/livegate/internal/archive"
	"github.com/ManuGH/livegate/internal/config"
	"github.com/ManuGH/livegate/internal/daemon"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	lglog "github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/objstore"
	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/resilience"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/task"
)

// recordPrefix is where the API serves recorded segments from disk.
const recordPrefix = "/terraform/v1/hooks/record/hls/"

type wiring struct {
	archivers []api.Archiver
	taskKinds []task.Kind
	library   *task.Library
	loops     []daemon.Loop
}

// wire builds the task supervisors and the archival workers. DVR and VOD
// are skipped when no object store is configured.
func wire(ctx context.Context, cfg config.AppConfig, h store.Hash, launcher ffmpeg.Launcher, instanceID string) (*wiring, error) {
	logger := lglog.WithComponent("daemon")
	w := &wiring{}

	for _, kind := range []task.Kind{task.Forward(h, cfg.Task.InputHost), task.VirtualLive()} {
		sup := task.NewSupervisor(task.Options{
			Kind:         kind,
			Store:        h,
			Launcher:     launcher,
			InstanceID:   instanceID,
			Tick:         cfg.Task.Tick,
			IdleWindow:   cfg.TaskIdleWindow(),
			KillInterval: cfg.Task.KillInterval,
		})
		w.taskKinds = append(w.taskKinds, kind)
		w.loops = append(w.loops, daemon.Loop{Name: "task." + sup.Name(), Run: sup.Run})

		if kind.NeedsFiles {
			lib, err := task.NewLibrary(cfg.UploadDir(), cfg.VLiveDir(), task.NewConfigStore(kind, h), launcher)
			if err != nil {
				return nil, fmt.Errorf("%s library: %w", kind.Name, err)
			}
			w.library = lib
		}
	}

	add := func(kind archive.Kind, dest archive.Destination, opts playlist.Options, segmentDir string) {
		worker := archive.NewWorker(archive.Options{
			Kind:        kind,
			Store:       h,
			Destination: dest,
			WorkDir:     cfg.Archive.WorkDir,
			Tick:        cfg.Archive.Tick,
			IdleBackoff: cfg.Archive.IdleBackoff,
			Expiry:      cfg.ArchiveExpiry(),
		})
		w.archivers = append(w.archivers, api.Archiver{
			Catalog:    archive.NewCatalog(kind, h),
			Submitter:  worker,
			Playlist:   opts,
			SegmentDir: segmentDir,
		})
		w.loops = append(w.loops, daemon.Loop{Name: "archive." + kind.Name, Run: worker.Run})
	}

	if cfg.Storage.Endpoint != "" {
		mc, err := objstore.NewMinio(objstore.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		buckets := []struct {
			kind   archive.Kind
			bucket string
			opts   playlist.Options
		}{
			{archive.KindDVR, cfg.Archive.DVRBucket, playlist.Options{Absolute: true}},
			{archive.KindVOD, cfg.Archive.VODBucket, playlist.Options{Absolute: true, Domain: cfg.Storage.Domain}},
		}
		for _, b := range buckets {
			if b.bucket == "" {
				logger.Warn().Str(lglog.FieldKind, b.kind.Name).Msg("no bucket configured, archival kind disabled")
				continue
			}
			if err := mc.EnsureBucket(ctx, b.bucket); err != nil {
				return nil, fmt.Errorf("%s bucket: %w", b.kind.Name, err)
			}
			breaker := resilience.NewCircuitBreaker("objstore."+b.kind.Name, cfg.Storage.BreakerThreshold, cfg.Storage.BreakerReset)
			add(b.kind, archive.NewObjectDestination(mc, b.bucket, cfg.Storage.Region, breaker), b.opts, "")
		}
	} else {
		logger.Warn().Msg("no object store endpoint configured, dvr and vod disabled")
	}

	add(archive.KindRecord,
		archive.NewDiskDestination(cfg.Archive.WorkDir, launcher),
		playlist.Options{UseKey: true, Prefix: recordPrefix},
		cfg.Archive.WorkDir,
	)
	return w, nil
}
