// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the media server callbacks and the archive and task
// endpoints of the gateway.
package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/livegate/internal/api/middleware"
	"github.com/ManuGH/livegate/internal/archive"
	"github.com/ManuGH/livegate/internal/clock"
	"github.com/ManuGH/livegate/internal/health"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/ManuGH/livegate/internal/playlist"
	"github.com/ManuGH/livegate/internal/store"
	"github.com/ManuGH/livegate/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Submitter accepts segment notifications for asynchronous archival.
type Submitter interface {
	Submit(n archive.Notification) error
}

// Archiver groups what the API needs of one archival kind.
type Archiver struct {
	Catalog   *archive.Catalog
	Submitter Submitter
	// Playlist selects how segment URIs are written in served playlists.
	Playlist playlist.Options
	// SegmentDir, when set, is the root whose <kind>/<session>/<tsid>.ts
	// files are served under /hls/<kind>/{session}/{tsid}.ts.
	SegmentDir string
}

// Deps are the collaborators of Server.
type Deps struct {
	Store     store.Hash
	Archivers []Archiver
	Tasks     []task.Kind
	// Library, when set, serves uploads and source selection for its family.
	Library *task.Library
	Health  *health.Manager
	Clock   clock.Clock
	Stack   middleware.StackConfig
	// ServeMetrics mounts /metrics on the API router.
	ServeMetrics bool
}

// Server is the HTTP surface of the gateway.
type Server struct {
	store     store.Hash
	archivers []Archiver
	tasks     map[string]*task.ConfigStore
	library   *task.Library
	health    *health.Manager
	clock     clock.Clock
	stack     middleware.StackConfig
	metrics   bool
	logger    zerolog.Logger
}

// New builds a Server. A nil clock defaults to the wall clock.
func New(d Deps) *Server {
	c := d.Clock
	if c == nil {
		c = clock.Real{}
	}
	tasks := make(map[string]*task.ConfigStore, len(d.Tasks))
	for _, k := range d.Tasks {
		tasks[k.Name] = task.NewConfigStore(k, d.Store)
	}
	hm := d.Health
	if hm == nil {
		hm = health.NewManager("")
	}
	return &Server{
		store:     d.Store,
		archivers: d.Archivers,
		tasks:     tasks,
		library:   d.Library,
		health:    hm,
		clock:     c,
		stack:     d.Stack,
		metrics:   d.ServeMetrics,
		logger:    log.WithComponent("api"),
	}
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(s.stack)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/terraform/v1/hooks", func(r chi.Router) {
		r.Post("/srs/hls", s.handleHLS)
		r.Post("/srs/verify", s.handleVerify)

		for _, a := range s.archivers {
			a := a
			r.Route("/"+a.Catalog.Kind().Name, func(r chi.Router) {
				r.Post("/apply", s.handleApply(a))
				r.Post("/query", s.handleQuery(a))
				r.Post("/files", s.handleFiles(a))
				r.Get("/hls/{uuid}.m3u8", s.handlePlaylist(a))
				if a.SegmentDir != "" {
					r.Get("/hls/"+a.Catalog.Kind().Name+"/{session}/{tsid}.ts", s.handleSegment(a))
				}
			})
		}
	})

	r.Route("/terraform/v1/ffmpeg/{family}", func(r chi.Router) {
		r.Post("/secret", s.handleSecret)
		r.Post("/streams", s.handleStreams)
		r.Post("/upload/{name}", s.handleUpload)
		r.Post("/source", s.handleSource)
	})

	return r
}

// NewHTTPServer wraps h with the timeouts used by every listener.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// MetricsHandler serves the Prometheus registry on a dedicated listener.
func MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}
