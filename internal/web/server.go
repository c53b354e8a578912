package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/ingest"
	"github.com/sloppy/lynistracker/internal/logging"
)

// formOverhead is the room left for the other upload fields on top of the
// report size limit.
const formOverhead = 64 << 10

// Server wires the web handlers and dependencies.
type Server struct {
	DB       *db.DB
	Pipeline *ingest.Pipeline
	Logger   *slog.Logger
	// Now returns the current time; tests pin it.
	Now    func() time.Time
	Router chi.Router
}

// NewServer constructs the router and registers routes. gatherer backs
// /metrics and may be nil.
func NewServer(pipeline *ingest.Pipeline, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	server := &Server{
		DB:       pipeline.DB,
		Pipeline: pipeline,
		Logger:   logging.OrDiscard(logger),
		Now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", server.handleRoot)
	r.Get("/health/", server.handleHealth)
	r.Get("/devices", server.handleDevicesList)
	r.Get("/devices/{id}", server.handleDeviceDetail)

	r.Post("/api/lynis/upload/", server.handleUpload)
	r.Post("/api/v1/lynis/upload/", server.handleUpload)
	r.Post("/api/lynis/license/", server.handleLicenseCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/devices", server.apiListDevices)
		r.Get("/devices/{id}", server.apiGetDevice)
		r.Get("/devices/{id}/activity", server.apiDeviceActivity)
		r.Get("/devices/{id}/events", server.apiDeviceEvents)
		r.Get("/devices/{id}/compliance", server.apiDeviceCompliance)
		r.Get("/devices/{id}/query", server.apiDeviceQuery)
		r.Get("/licenses/{key}/export", server.apiLicenseExport)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	server.Router = r
	return server
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.Router
}

func (s *Server) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
