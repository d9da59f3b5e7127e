// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/task"
	"github.com/go-chi/chi/v5"
)

type sourceRequest struct {
	Platform string            `json:"platform"`
	Files    []task.SourceFile `json:"files"`
}

type sourceResponse struct {
	Platform string            `json:"platform"`
	Files    []task.SourceFile `json:"files"`
}

func (s *Server) fileLibrary(r *http.Request) (*task.Library, error) {
	name := chi.URLParam(r, "family")
	if s.library == nil || s.library.Kind().Name != name {
		return nil, fmt.Errorf("%w: task family %q takes no source files", ErrBadRequest, name)
	}
	return s.library, nil
}

// handleUpload stores the file part named by the route as a new upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	lib, err := s.fileLibrary(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, errors.Join(ErrBadRequest, err))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, r, fmt.Errorf("%w: no file part", ErrBadRequest))
			return
		}
		if err != nil {
			writeError(w, r, errors.Join(ErrBadRequest, err))
			return
		}
		if part.FileName() == "" {
			continue
		}
		if part.FileName() != name {
			writeError(w, r, fmt.Errorf("%w: filename %q does not match %q", ErrBadRequest, part.FileName(), name))
			return
		}

		file, err := lib.Upload(name, part)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, file)
		return
	}
}

// handleSource makes uploaded files or stream URLs the sources of a platform.
func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	lib, err := s.fileLibrary(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body sourceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	files, err := lib.Select(r.Context(), body.Platform, body.Files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).Info().
		Str(log.FieldPlatform, body.Platform).
		Int(log.FieldFiles, len(files)).
		Msg("platform sources selected")
	writeData(w, sourceResponse{Platform: body.Platform, Files: files})
}
