// Package server exposes the HTTP surface: dashboard status endpoints, manual
// heating override, and historical log/time-series queries. All handlers
// close over an explicit app context built at construction time rather than
// reading package-level globals.
package server

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/tommyskogstad/geoloop/internal/relay"
	"github.com/tommyskogstad/geoloop/internal/sensors"
	"github.com/tommyskogstad/geoloop/internal/store"
)

// Config wires every collaborator the HTTP surface needs. Relay may be nil
// when no relay hardware is configured; handlers treat that as "controller
// not configured" rather than panicking.
type Config struct {
	Addr    string
	Log     zerolog.Logger
	Store   *store.Store
	Sensors *sensors.Set
	Weather forecaster
	Relay   relay.Relay
	Lat     float64
	Lon     float64
	Static  fs.FS
}

// Server owns the chi router and the underlying http.Server.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New builds a Server ready to Start. Routes are registered immediately so
// the http.Server's Handler (used by tests) reflects the final routing table.
func New(cfg Config) *Server {
	app := &appContext{
		store:   cfg.Store,
		sensors: cfg.Sensors,
		weather: cfg.Weather,
		relay:   cfg.Relay,
		lat:     cfg.Lat,
		lon:     cfg.Lon,
		log:     cfg.Log.With().Str("component", "http_server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	app.registerRoutes(r)

	if cfg.Static != nil {
		fileServer := http.FileServer(http.FS(cfg.Static))
		r.Handle("/*", fileServer)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: app.log,
	}
}

// Start runs the HTTP server until Shutdown is called. It always returns a
// non-nil error; http.ErrServerClosed signals a clean Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
