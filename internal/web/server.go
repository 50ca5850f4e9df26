// Package web provides the HTTP API for CoreTet.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/config"
)

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Auth      auth.Authenticator
	Tracks    TrackService
	Playlists PlaylistService
	Invites   InviteService
	Feedback  FeedbackService
	Providers ProviderSessions
	Consent   ConsentFlow
	// Objects serves signed object URLs when the backend is local.
	Objects   http.Handler
	Logger    *log.Logger
}

// Server is the HTTP server for the API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
	cfg      config.ServerConfig
	authn    auth.Authenticator
	objects  http.Handler
}

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		router:   chi.NewRouter(),
		handlers: NewHandlers(deps, logger),
		logger:   logger,
		cfg:      cfg,
		authn:    deps.Auth,
		objects:  deps.Objects,
	}

	s.setupMiddleware()
	s.setupRoutes()

	// Configure HTTP server
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}
	return s
}

// Handler returns the root handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(corsMiddleware(s.cfg.AllowOrigin))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/healthz", h.Health)

	// The consent redirect arrives from the browser without a bearer token;
	// the OAuth state identifies the user.
	s.router.Get("/providers/google_drive/callback", h.GoogleCallback)

	// Signed object URLs carry their own grant in the query string.
	if s.objects != nil {
		s.router.Handle("/storage/v1/object/*", s.objects)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth(s.authn))

		r.Route("/functions/v1", func(r chi.Router) {
			r.Post("/get-track-url", h.GetTrackURL)
			r.Post("/get-track-urls", h.GetTrackURLs)
			r.Post("/upload-track", h.UploadTrack)
			r.Post("/generate-invite", h.GenerateInvite)
			r.Post("/send-feedback", h.SendFeedback)
		})

		r.Get("/tracks", h.ListTracks)

		r.Post("/playlists", h.CreatePlaylist)
		r.Get("/playlists/shared", h.SharedPlaylists)
		r.Get("/playlists/{id}", h.GetPlaylist)
		r.Put("/playlists/{id}/tracks", h.SetPlaylistTracks)
		r.Post("/playlists/{id}/shares", h.SharePlaylist)
		r.Post("/shares/{id}/accept", h.AcceptShare)

		r.Get("/providers", h.ListProviders)
		r.Post("/providers/{name}/connect", h.ConnectProvider)
		r.Post("/providers/{name}/disconnect", h.DisconnectProvider)
		r.Post("/providers/{name}/activate", h.ActivateProvider)
		r.Get("/providers/{name}/quota", h.ProviderQuota)
		r.Get("/providers/{name}/files", h.ProviderFiles)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	// Channel to receive shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
