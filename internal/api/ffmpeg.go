// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"

	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/task"
	"github.com/go-chi/chi/v5"
)

type secretRequest struct {
	Action string `json:"action"`
	task.PlatformConfig
}

func (s *Server) family(r *http.Request) (*task.ConfigStore, error) {
	name := chi.URLParam(r, "family")
	cs, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown task family %q", ErrBadRequest, name)
	}
	return cs, nil
}

// handleSecret saves a platform config when action is "update" and lists
// every config keyed by platform otherwise.
func (s *Server) handleSecret(w http.ResponseWriter, r *http.Request) {
	cs, err := s.family(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body secretRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if body.Action == "update" {
		if err := cs.Save(r.Context(), body.PlatformConfig); err != nil {
			writeError(w, r, err)
			return
		}
		log.FromContext(r.Context()).Info().
			Str(log.FieldKind, chi.URLParam(r, "family")).
			Str(log.FieldPlatform, body.Platform).
			Bool("enabled", body.Enabled).
			Msg("platform config saved")
		writeData(w, nil)
		return
	}

	configs, err := cs.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make(map[string]task.PlatformConfig, len(configs))
	for _, cfg := range configs {
		out[cfg.Platform] = cfg
	}
	writeData(w, out)
}

// handleStreams reports the task status of every configured platform.
func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	cs, err := s.family(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	statuses, err := cs.Tasks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, statuses)
}
