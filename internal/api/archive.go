// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/livegate/internal/archive"
	"github.com/ManuGH/livegate/internal/fsutil"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type applyRequest struct {
	All *bool `json:"all"`
}

type queryResponse struct {
	All bool `json:"all"`
}

// handleApply switches archiving of every stream on or off.
func (s *Server) handleApply(a Archiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body applyRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		if body.All == nil {
			writeError(w, r, fmt.Errorf("%w: all must be true or false", ErrBadRequest))
			return
		}
		if err := a.Catalog.SetEnabled(r.Context(), *body.All); err != nil {
			writeError(w, r, err)
			return
		}
		log.FromContext(r.Context()).Info().
			Str(log.FieldKind, a.Catalog.Kind().Name).
			Bool("all", *body.All).
			Msg("archive patterns applied")
		writeData(w, nil)
	}
}

func (s *Server) handleQuery(a Archiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := a.Catalog.Enabled(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, queryResponse{All: all})
	}
}

func (s *Server) handleFiles(a Archiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := a.Catalog.Files(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, files)
	}
}

// handlePlaylist renders the playlist of one session.
func (s *Server) handlePlaylist(a Archiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "uuid")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid uuid %q", ErrBadRequest, id))
			return
		}
		contentType, body, err := a.Catalog.Playlist(r.Context(), id, a.Playlist)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

// handleSegment serves a segment stored on local disk under
// <SegmentDir>/<kind>/<session>/<tsid>.ts.
func (s *Server) handleSegment(a Archiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, tsid := chi.URLParam(r, "session"), chi.URLParam(r, "tsid")
		if _, err := uuid.Parse(session); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid session %q", ErrBadRequest, session))
			return
		}
		if _, err := uuid.Parse(tsid); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid segment %q", ErrBadRequest, tsid))
			return
		}
		path, err := fsutil.ConfineRelPath(a.SegmentDir, filepath.Join(a.Catalog.Kind().Name, session, tsid+".ts"))
		if err == nil {
			err = fsutil.IsRegularFile(path)
		}
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %s/%s", archive.ErrSessionNotFound, session, tsid))
			return
		}
		w.Header().Set("Content-Type", "video/mp2t")
		http.ServeFile(w, r, path)
	}
}
