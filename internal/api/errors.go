// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/livegate/internal/archive"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/task"
)

var (
	// ErrBadRequest marks malformed or incomplete request bodies.
	ErrBadRequest = errors.New("bad request")
	// ErrForbidden rejects a publish without the configured secret.
	ErrForbidden = errors.New("forbidden")
)

// Error codes carried in the response envelope. Zero means success; the media
// server treats any other value as a rejected callback.
const (
	codeOK          = 0
	codeInvalid     = 100
	codeForbidden   = 101
	codeNotFound    = 102
	codeUnavailable = 103
	codeInternal    = 200
)

type envelope struct {
	Code int `json:"code"`
	Data any `json:"data,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   int
}

var errorTable = []errorMapping{
	{ErrBadRequest, http.StatusBadRequest, codeInvalid},
	{archive.ErrUnknownAction, http.StatusBadRequest, codeInvalid},
	{task.ErrInvalidPlatformConfig, http.StatusBadRequest, codeInvalid},
	{task.ErrInvalidSource, http.StatusBadRequest, codeInvalid},
	{playlist.ErrNoFiles, http.StatusBadRequest, codeInvalid},
	{ErrForbidden, http.StatusForbidden, codeForbidden},
	{archive.ErrSessionNotFound, http.StatusNotFound, codeNotFound},
	{task.ErrPlatformNotFound, http.StatusNotFound, codeNotFound},
	{archive.ErrQueueFull, http.StatusServiceUnavailable, codeUnavailable},
}

// classify maps err to an HTTP status and envelope code.
func classify(err error) (status, code int) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes a successful envelope.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: codeOK, Data: data})
}

// writeError logs err and writes the mapped error envelope. Internal errors
// are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
	} else {
		logger.Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, envelope{Code: code, Data: errorData{Message: msg}})
}

// decodeJSON decodes the request body into v, mapping failures to
// ErrBadRequest. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
