// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ManuGH/livegate/internal/archive"
	"github.com/ManuGH/livegate/internal/fsutil"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/task"
)

// hlsHook is the on_hls callback body of the media server.
type hlsHook struct {
	Action   string  `json:"action"`
	ClientID string  `json:"client_id"`
	Vhost    string  `json:"vhost"`
	App      string  `json:"app"`
	Stream   string  `json:"stream"`
	Param    string  `json:"param"`
	Duration float64 `json:"duration"`
	CWD      string  `json:"cwd"`
	File     string  `json:"file"`
	URL      string  `json:"url"`
	M3U8URL  string  `json:"m3u8_url"`
	SeqNo    uint64  `json:"seq_no"`
}

// streamHook is the on_publish/on_unpublish callback body.
type streamHook struct {
	Action   string `json:"action"`
	ServerID string `json:"server_id"`
	ClientID string `json:"client_id"`
	Vhost    string `json:"vhost"`
	App      string `json:"app"`
	Stream   string `json:"stream"`
	Param    string `json:"param"`
}

// handleHLS fans a freshly written segment out to every enabled archival
// kind and records the outcome per kind under the source playlist url.
func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body hlsHook
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Action != "on_hls" {
		writeError(w, r, fmt.Errorf("%w: invalid action %q", ErrBadRequest, body.Action))
		return
	}
	if body.M3U8URL == "" {
		writeError(w, r, fmt.Errorf("%w: no m3u8_url", ErrBadRequest))
		return
	}
	file := body.File
	if !filepath.IsAbs(file) && body.CWD != "" {
		file = filepath.Join(body.CWD, file)
	}
	if err := fsutil.IsRegularFile(file); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid ts file %s", ErrBadRequest, body.File))
		return
	}

	logger := log.FromContext(ctx).With().
		Str(log.FieldStreamKey, body.App+"/"+body.Stream).
		Uint64("seqno", body.SeqNo).
		Logger()

	now := s.clock.Now()
	var dropped []error
	for _, a := range s.archivers {
		kind := a.Catalog.Kind()
		enabled, err := a.Catalog.Enabled(ctx)
		if err != nil {
			writeError(w, r, fmt.Errorf("read %s patterns: %w", kind.Name, err))
			return
		}

		outcome := archive.HookIgnored
		if enabled {
			outcome = archive.HookTaskCreated
			err := a.Submitter.Submit(archive.Notification{
				Action:    kind.Action,
				File:      file,
				Duration:  body.Duration,
				SeqNo:     body.SeqNo,
				SourceURL: body.M3U8URL,
				URL:       body.URL,
				Params:    archive.Params{Vhost: body.Vhost, App: body.App, Stream: body.Stream, Param: body.Param},
			})
			if err != nil {
				outcome = archive.HookDropped
				dropped = append(dropped, fmt.Errorf("%s: %w", kind.Name, err))
			}
		}
		if err := a.Catalog.MarkHook(ctx, body.M3U8URL, outcome, now); err != nil {
			writeError(w, r, fmt.Errorf("record %s hook: %w", kind.Name, err))
			return
		}
		logger.Debug().Str(log.FieldKind, kind.Name).Str("outcome", outcome).Msg("hls segment")
	}

	if err := errors.Join(dropped...); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, nil)
}

// handleVerify authorizes publishers and tracks which streams are live.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body streamHook
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	noAuth, err := s.authValue(r, "pubNoAuth")
	if err != nil {
		writeError(w, r, err)
		return
	}

	stream := task.LiveStream{
		Vhost:  body.Vhost,
		App:    body.App,
		Stream: body.Stream,
		Server: body.ServerID,
		Client: body.ClientID,
	}
	logger := log.FromContext(ctx).With().Str(log.FieldStreamKey, stream.Key()).Str("action", body.Action).Logger()

	switch body.Action {
	case "on_publish":
		if noAuth != "true" {
			secret, err := s.authValue(r, "pubSecret")
			if err != nil {
				writeError(w, r, err)
				return
			}
			// The secret may ride in the query string or be part of the stream
			// name for encoders that cannot send params.
			if secret != "" && !strings.Contains(body.Param, secret) && !strings.Contains(body.Stream, secret) {
				writeError(w, r, fmt.Errorf("%w: invalid secret for stream %s", ErrForbidden, stream.Key()))
				return
			}
		}
		stream.Update = s.clock.Now()
		if err := task.Publish(ctx, s.store, stream); err != nil {
			writeError(w, r, fmt.Errorf("publish %s: %w", stream.Key(), err))
			return
		}
		logger.Info().Msg("stream published")
	case "on_unpublish":
		if err := task.Unpublish(ctx, s.store, stream); err != nil {
			writeError(w, r, fmt.Errorf("unpublish %s: %w", stream.Key(), err))
			return
		}
		logger.Info().Msg("stream unpublished")
	default:
		logger.Debug().Msg("stream event ignored")
	}
	writeData(w, nil)
}

func (s *Server) authValue(r *http.Request, field string) (string, error) {
	v, err := s.store.HGet(r.Context(), store.AuthSecret, field)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	return v, nil
}
