// internal/api/server.go
//
// Package api exposes devices over HTTP for host applications.
package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/erv-controller/internal/config"
	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/session"
)

// Device is the operation set the API drives. *erv.Device satisfies it.
type Device interface {
	CurrentSnapshot() poller.Snapshot
	State() session.State
	PowerSet(ctx context.Context, on bool) (session.Ack, error)
	FanSpeedSet(ctx context.Context, level string) (session.Ack, error)
	FanPercentSet(ctx context.Context, percent int) error
	FanPercent() (int, bool)
	SetAttribute(ctx context.Context, name, symbol string) (session.Ack, error)
}

// Entry registers one device under its configured name.
type Entry struct {
	ID     uuid.UUID
	Name   string
	Device Device
}

type Server struct {
	log    zerolog.Logger
	router chi.Router
	server *http.Server

	mu      sync.RWMutex
	devices map[string]Entry
}

// New builds the router. gatherer backs /metrics and may be nil.
func New(cfg config.APIConfig, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		log:     logger,
		router:  chi.NewRouter(),
		devices: make(map[string]Entry),
	}

	s.routes(cfg, gatherer)

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(cfg config.APIConfig, gatherer prometheus.Gatherer) {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Put("/power", s.handlePower)
			r.Put("/fan-speed", s.handleFanSpeed)
			r.Get("/fan-percent", s.handleGetFanPercent)
			r.Put("/fan-percent", s.handleFanPercent)
			r.Put("/attributes/{attr}", s.handleAttribute)
		})
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Register adds or replaces a device.
func (s *Server) Register(e Entry) {
	s.mu.Lock()
	s.devices[e.Name] = e
	s.mu.Unlock()
}

func (s *Server) lookup(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.devices[name]
	return e, ok
}

func (s *Server) entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.devices))
	for _, e := range s.devices {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("api listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
