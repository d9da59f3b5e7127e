// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package archive stages HLS segments announced by the media server, moves
// them to durable storage and publishes a playlist once a session ends.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/metrics"
	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/telemetry"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Options configures a Worker.
type Options struct {
	Kind        Kind
	Store       store.Hash
	Destination Destination
	// WorkDir holds the staging directory "<WorkDir>/<kind>".
	WorkDir string
	Clock   clock.Clock

	Tick        time.Duration
	IdleBackoff time.Duration
	// Expiry is the inactivity after which a session is finalized.
	Expiry    time.Duration
	QueueSize int
}

// Worker archives the segments of one kind.
type Worker struct {
	kind      Kind
	store     store.Hash
	dest      Destination
	assembler Assembler
	staging   string
	clock     clock.Clock
	logger    zerolog.Logger
	tracer    trace.Tracer

	tick        time.Duration
	idleBackoff time.Duration
	expiry      time.Duration

	queue chan Notification

	// mu serializes read-modify-write cycles on the local buffers.
	mu sync.Mutex
}

func NewWorker(opts Options) *Worker {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Tick <= 0 {
		opts.Tick = 3 * time.Second
	}
	if opts.IdleBackoff <= 0 {
		opts.IdleBackoff = 9 * time.Second
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 300 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	bucket, region := opts.Destination.Location()
	return &Worker{
		kind:        opts.Kind,
		store:       opts.Store,
		dest:        opts.Destination,
		assembler:   Assembler{Bucket: bucket, Region: region},
		staging:     filepath.Join(opts.WorkDir, opts.Kind.Name),
		clock:       opts.Clock,
		logger:      log.WithComponent("archive." + opts.Kind.Name),
		tracer:      telemetry.Tracer("github.com/ManuGH/livegate/internal/archive"),
		tick:        opts.Tick,
		idleBackoff: opts.IdleBackoff,
		expiry:      opts.Expiry,
		queue:       make(chan Notification, opts.QueueSize),
	}
}

// Kind returns the archival kind served by w.
func (w *Worker) Kind() Kind { return w.kind }

// StagingDir is where ingested segments wait for storage.
func (w *Worker) StagingDir() string { return w.staging }

// Submit queues n for ingestion without blocking.
func (w *Worker) Submit(n Notification) error {
	select {
	case w.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run ingests submitted notifications and polls the active sessions until
// ctx is cancelled or a tick fails.
func (w *Worker) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.staging, 0o750); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.consume(gctx)
		return nil
	})
	g.Go(func() error {
		return w.poll(gctx)
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			if err := w.Ingest(ctx, n); err != nil {
				w.logger.Error().
					Err(err).
					Str(log.FieldEvent, "archive.ingest_failed").
					Str(log.FieldSourceURL, n.SourceURL).
					Str(log.FieldPath, n.File).
					Msg("failed to ingest segment")
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context) error {
	w.logger.Info().Str(log.FieldEvent, "archive.loop_started").Msg("archive worker started")
	for {
		idle, err := w.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s tick: %w", w.kind.Name, err)
		}
		wait := w.tick
		if idle {
			wait = w.idleBackoff
		}
		if err := clock.Sleep(ctx, w.clock, wait); err != nil {
			return nil
		}
	}
}

// Ingest stages the announced segment and appends it to its source's buffer,
// starting a new session when the source has none.
func (w *Worker) Ingest(ctx context.Context, n Notification) error {
	if n.Action != w.kind.Action {
		return fmt.Errorf("%w: %q", ErrUnknownAction, n.Action)
	}
	if n.SourceURL == "" {
		return fmt.Errorf("archive: notification without m3u8_url")
	}

	tsid := uuid.NewString()
	tsfile := filepath.Join(w.staging, tsid+".ts")
	if err := stage(n.File, tsfile); err != nil {
		return fmt.Errorf("stage %s: %w", n.File, err)
	}

	if err := w.append(ctx, n, tsid, tsfile); err != nil {
		_ = os.Remove(tsfile)
		return err
	}
	metrics.SegmentsIngestedTotal.WithLabelValues(w.kind.Name).Inc()
	return nil
}

func (w *Worker) append(ctx context.Context, n Notification, tsid, tsfile string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := w.kind.Keys
	now := w.clock.Now()

	var marker ActiveMarker
	found, err := store.GetJSON(ctx, w.store, keys.Active, n.SourceURL, &marker)
	if err != nil {
		return err
	}
	if !found {
		marker.UUID = uuid.NewString()
	}
	marker.Update = now

	var local LocalBuffer
	found, err = store.GetJSON(ctx, w.store, keys.Local, n.SourceURL, &local)
	if err != nil {
		return err
	}
	if !found || local.UUID != marker.UUID {
		local.Done = nil
		local.UUID = marker.UUID
		local.UUIDs = append(local.UUIDs, marker.UUID)
		w.logger.Info().
			Str(log.FieldEvent, "archive.session_started").
			Str(log.FieldSourceURL, n.SourceURL).
			Str(log.FieldSessionID, marker.UUID).
			Int("sessions", len(local.UUIDs)).
			Msg("new archival session")
	}
	local.Files = append(local.Files, Segment{Notification: n, TsID: tsid, TsFile: tsfile})
	local.N = len(local.Files)
	local.Update = now
	// Buffer before marker: a visible marker always has its buffer.
	if err := store.SetJSON(ctx, w.store, keys.Local, n.SourceURL, local); err != nil {
		return err
	}
	if err := store.SetJSON(ctx, w.store, keys.Active, n.SourceURL, marker); err != nil {
		return err
	}

	w.logger.Debug().
		Str(log.FieldEvent, "archive.segment_staged").
		Str(log.FieldSourceURL, n.SourceURL).
		Str(log.FieldSessionID, marker.UUID).
		Str(log.FieldSegmentID, tsid).
		Int(log.FieldFiles, local.N).
		Float64("duration", n.Duration).
		Uint64("seqno", n.SeqNo).
		Msg("segment staged")
	return nil
}

// stage copies src to dst through a pending file so dst is never partial.
func stage(src, dst string) error {
	// #nosec G304 -- src is the segment path reported by the media server
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o640))
	if err != nil {
		return err
	}
	defer func() { _ = pf.Cleanup() }()

	if _, err := io.Copy(pf, in); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

// Tick stores the staged segments of every active session and finalizes the
// ones that went quiet. idle is true when there was no active session.
func (w *Worker) Tick(ctx context.Context) (idle bool, err error) {
	sources, err := w.store.HKeys(ctx, w.kind.Keys.Active)
	if err != nil {
		return false, fmt.Errorf("list active %s sessions: %w", w.kind.Name, err)
	}
	metrics.SessionsActive.WithLabelValues(w.kind.Name).Set(float64(len(sources)))
	if len(sources) == 0 {
		return true, nil
	}

	for _, source := range sources {
		if err := w.handle(ctx, source); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (w *Worker) handle(ctx context.Context, source string) error {
	var local LocalBuffer
	found, err := store.GetJSON(ctx, w.store, w.kind.Keys.Local, source, &local)
	if err != nil {
		return err
	}
	if !found || len(local.Files) == 0 {
		return w.finalize(ctx, source)
	}

	// Work on a snapshot; ingest may append while segments are stored.
	files := append([]Segment(nil), local.Files...)
	for _, seg := range files {
		if err := w.storeSegment(ctx, source, local.UUID, seg); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) storeSegment(ctx context.Context, source, session string, seg Segment) (err error) {
	ctx, span := w.tracer.Start(ctx, "archive.store_segment",
		trace.WithAttributes(telemetry.ArchiveAttributes(w.kind.Name, session, seg.TsID)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := w.logger.With().
		Str(log.FieldSourceURL, source).
		Str(log.FieldSessionID, session).
		Str(log.FieldSegmentID, seg.TsID).
		Logger()

	if _, statErr := os.Stat(seg.TsFile); errors.Is(statErr, fs.ErrNotExist) {
		metrics.SegmentsMissingTotal.WithLabelValues(w.kind.Name).Inc()
		logger.Warn().
			Str(log.FieldEvent, "archive.segment_missing").
			Str(log.FieldPath, seg.TsFile).
			Str("url", seg.URL).
			Msg("staged segment missing, skipping")
		return w.release(ctx, source, seg.TsID)
	}

	start := time.Now()
	key, size, err := w.dest.Store(ctx, session, seg)
	if err != nil {
		return fmt.Errorf("store segment %s: %w", seg.TsID, err)
	}
	metrics.SegmentStoreDuration.WithLabelValues(w.kind.Name).Observe(time.Since(start).Seconds())
	span.SetAttributes(telemetry.StoredAttributes(key, size)...)

	if w.dest.TracksUploads() {
		if err := w.recordUpload(ctx, session, seg, key, size); err != nil {
			return err
		}
	}
	if err := w.mergeMetadata(ctx, session, seg, key, size); err != nil {
		return err
	}
	if err := w.release(ctx, source, seg.TsID); err != nil {
		return err
	}
	if err := os.Remove(seg.TsFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Str(log.FieldPath, seg.TsFile).Msg("remove staged segment")
	}

	metrics.SegmentsStoredTotal.WithLabelValues(w.kind.Name).Inc()
	metrics.SegmentBytesTotal.WithLabelValues(w.kind.Name).Add(float64(size))
	logger.Info().
		Str(log.FieldEvent, "archive.segment_stored").
		Str(log.FieldObjectKey, key).
		Int64(log.FieldSize, size).
		Msg("segment stored")
	return nil
}

func (w *Worker) recordUpload(ctx context.Context, session string, seg Segment, key string, size int64) error {
	var set UploadedSet
	found, err := store.GetJSON(ctx, w.store, w.kind.Keys.Uploaded, session, &set)
	if err != nil {
		return err
	}
	if !found {
		set = UploadedSet{Update: w.clock.Now(), UUID: session}
	}
	kept := set.Files[:0:0]
	for _, f := range set.Files {
		if f.TsID != seg.TsID {
			kept = append(kept, f)
		}
	}
	set.Files = append(kept, UploadedFile{Segment: seg, Key: key, Size: size})
	set.N = len(set.Files)
	return store.SetJSON(ctx, w.store, w.kind.Keys.Uploaded, session, set)
}

func (w *Worker) mergeMetadata(ctx context.Context, session string, seg Segment, key string, size int64) error {
	now := w.clock.Now()
	var meta Metadata
	found, err := store.GetJSON(ctx, w.store, w.kind.Keys.Metadata, session, &meta)
	if err != nil {
		return err
	}
	if !found {
		meta = *w.assembler.New(session, seg, now)
	}
	w.assembler.Merge(&meta, MetaFile{
		Key:      key,
		TsID:     seg.TsID,
		URL:      seg.URL,
		SeqNo:    seg.SeqNo,
		Duration: seg.Duration,
		Size:     size,
	}, now)
	return store.SetJSON(ctx, w.store, w.kind.Keys.Metadata, session, meta)
}

// release drops tsid from the stored buffer of source. The buffer is
// reloaded first so segments appended since the snapshot survive.
func (w *Worker) release(ctx context.Context, source, tsid string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var local LocalBuffer
	found, err := store.GetJSON(ctx, w.store, w.kind.Keys.Local, source, &local)
	if err != nil || !found {
		return err
	}
	kept := local.Files[:0:0]
	for _, f := range local.Files {
		if f.TsID != tsid {
			kept = append(kept, f)
		}
	}
	local.Files = kept
	local.N = len(kept)
	local.Update = w.clock.Now()
	return store.SetJSON(ctx, w.store, w.kind.Keys.Local, source, local)
}

// finalize publishes the playlist of a drained session once it has been
// quiet for the expiry window, then closes the session. The buffer lock is
// not held while publishing; ingest that lands meanwhile keeps the session open.
func (w *Worker) finalize(ctx context.Context, source string) (err error) {
	local, due, err := w.finalizeDue(ctx, source)
	if err != nil || !due {
		return err
	}

	ctx, span := w.tracer.Start(ctx, "archive.finalize",
		trace.WithAttributes(telemetry.ArchiveAttributes(w.kind.Name, local.UUID, "")...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	segments, duration, err := w.publish(ctx, local.UUID)
	if err != nil {
		return err
	}

	closed, err := w.closeSession(ctx, source, local.UUID)
	if err != nil || !closed {
		if err == nil {
			w.logger.Info().
				Str(log.FieldSourceURL, source).
				Str(log.FieldSessionID, local.UUID).
				Msg("segments arrived while finalizing, session kept open")
		}
		return err
	}

	metrics.SessionsFinalizedTotal.WithLabelValues(w.kind.Name).Inc()
	w.logger.Info().
		Str(log.FieldEvent, "archive.session_done").
		Str(log.FieldSourceURL, source).
		Str(log.FieldSessionID, local.UUID).
		Int(log.FieldFiles, segments).
		Float64("target_duration", duration).
		Time("expired", local.Update.Add(w.expiry)).
		Msg("archival session finalized")
	return nil
}

// finalizeDue reports whether the buffer of source is drained and expired.
// Markers without a buffer are dropped.
func (w *Worker) finalizeDue(ctx context.Context, source string) (LocalBuffer, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := w.kind.Keys

	var local LocalBuffer
	found, err := store.GetJSON(ctx, w.store, keys.Local, source, &local)
	if err != nil {
		return local, false, err
	}
	if !found || local.Update.IsZero() {
		if err := w.store.HDel(ctx, keys.Local, source); err != nil {
			return local, false, err
		}
		return local, false, w.store.HDel(ctx, keys.Active, source)
	}
	// Ingest appended since the snapshot; the next tick stores it.
	if len(local.Files) > 0 {
		return local, false, nil
	}
	if local.Update.Add(w.expiry).After(w.clock.Now()) {
		return local, false, nil
	}
	return local, true, nil
}

// closeSession marks the buffer done and removes the marker, unless ingest
// appended to session while its playlist was being published.
func (w *Worker) closeSession(ctx context.Context, source, session string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := w.kind.Keys

	var local LocalBuffer
	found, err := store.GetJSON(ctx, w.store, keys.Local, source, &local)
	if err != nil {
		return false, err
	}
	if !found || local.UUID != session || len(local.Files) > 0 {
		return false, nil
	}

	now := w.clock.Now()
	local.Done = &now
	if err := store.SetJSON(ctx, w.store, keys.Local, source, local); err != nil {
		return false, err
	}
	if err := w.store.HDel(ctx, keys.Active, source); err != nil {
		return false, err
	}
	return true, nil
}

// publish writes the VOD playlist of session and marks its metadata done.
// Sessions without metadata have nothing to publish.
func (w *Worker) publish(ctx context.Context, session string) (int, float64, error) {
	var meta Metadata
	found, err := store.GetJSON(ctx, w.store, w.kind.Keys.Metadata, session, &meta)
	if err != nil || !found {
		return 0, 0, err
	}

	var duration float64
	if len(meta.Files) > 0 {
		_, body, d, err := playlist.BuildVOD(meta.Document(), playlist.Options{})
		if err != nil {
			return 0, 0, fmt.Errorf("build playlist %s: %w", session, err)
		}
		if err := w.dest.Publish(ctx, session, []byte(body)); err != nil {
			return 0, 0, fmt.Errorf("publish playlist %s: %w", session, err)
		}
		duration = d
	}

	w.assembler.Finish(&meta, w.clock.Now())
	if err := store.SetJSON(ctx, w.store, w.kind.Keys.Metadata, session, meta); err != nil {
		return 0, 0, err
	}
	return len(meta.Files), duration, nil
}
