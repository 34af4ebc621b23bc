// Package httpapi serves quotes over HTTP with a chi router.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/resolver"
	"github.com/Keksclan/goQuoteSquirrel/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Resolver is the read path the handlers serve from.
type Resolver interface {
	ResolveOne(ctx context.Context, ticker string) (*resolver.Result, error)
	ResolveMany(ctx context.Context, tickers []string) resolver.Batch
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStatus reports the refresh queue depth.
type QueueStatus interface {
	Len(ctx context.Context) (int, error)
}

// Refresher drives refresh ticks on demand.
type Refresher interface {
	Tick(ctx context.Context) worker.Outcome
	Running() bool
}

// Config holds server configuration. Resolver is required; the rest is
// optional and disables the routes or checks that need it.
type Config struct {
	Addr       string
	Log        zerolog.Logger
	Resolver   Resolver
	Cache      Pinger
	Queue      QueueStatus
	Worker     Refresher
	Metrics    http.Handler
	CronSecret string
	Timeout    time.Duration // per-request; defaults to 30s
	Now        func() time.Time
}

// Server is the HTTP surface of the quote service.
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "http").Logger(),
		now:    cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(s.cfg.Timeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics)
	}

	s.router.Route("/stocks", func(r chi.Router) {
		r.Get("/", s.handleStocks)
		r.Post("/prices", s.handlePrices)
		r.Get("/{ticker}", s.handleStock)
	})

	if s.cfg.Worker != nil {
		s.router.Post("/cron/refresh", s.handleCronRefresh)
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
