// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New opens the database, builds the
// pipeline and services, and wires handlers to routes. main only loads
// configuration and calls Start.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/analysis-runner/internal/analysis"
	"github.com/sakif/analysis-runner/internal/auth"
	"github.com/sakif/analysis-runner/internal/config"
	"github.com/sakif/analysis-runner/internal/executor/docker"
	"github.com/sakif/analysis-runner/internal/handler"
	"github.com/sakif/analysis-runner/internal/middleware"
	sqliteRepo "github.com/sakif/analysis-runner/internal/repository/sqlite"
	"github.com/sakif/analysis-runner/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it on shutdown. The
// Docker provider is owned by the caller.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	provider *docker.Provider
}

// New creates a Server. provider may be nil when Docker is unavailable; the
// catalog endpoints keep working and analyses answer 503.
func New(cfg *config.Config, logger *slog.Logger, provider *docker.Provider) (*Server, error) {
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		provider: provider,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTES:
// GET    /metrics                      → Prometheus metrics
// GET    /api/health                   → docker and database checks
// GET    /api/sandbox/check            → run the self-test analysis
// POST   /api/analysis                 → run one analysis
// POST   /api/folders                  → create folder
// GET    /api/folders                  → list folders
// GET    /api/folders/{id}             → get folder
// DELETE /api/folders/{id}             → delete folder and its files
// POST   /api/folders/{id}/files       → upload CSV (multipart)
// GET    /api/folders/{id}/files       → list files
// GET    /api/files/{id}               → file metadata
// GET    /api/files/{id}/content       → raw CSV
// GET    /api/files/{id}/preview       → header and sample rows
// DELETE /api/files/{id}               → delete file
//
// Middleware runs in the order it is added: request id first so the logger
// can report it, Recoverer last so it sits closest to the handlers.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Handle("/metrics", middleware.MetricsHandler())

	datasetService := service.NewDatasetService(s.db, s.config.Server.MaxUploadBytes, s.logger)

	// A nil *analysis.Runner stored in the interface would not compare
	// equal to nil, so the runner is only assigned when Docker is up.
	var runner service.Runner
	var dockerCheck handler.Pinger
	if s.provider != nil {
		runner = analysis.NewRunner(s.provider, s.config.Analysis(), s.logger)
		dockerCheck = s.provider
	}
	analysisService := service.NewAnalysisService(runner, datasetService, s.logger)

	analysisHandler := handler.NewAnalysisHandler(analysisService, s.logger)
	datasetHandler := handler.NewDatasetHandler(datasetService, s.logger)
	healthHandler := handler.NewHealthHandler(dockerCheck, s.db, s.logger)

	var requireToken func(http.Handler) http.Handler
	if s.config.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		requireToken = auth.RequireToken(tokens)
	} else {
		s.logger.Warn("auth.jwt_secret not set, the API is open")
	}

	admission := middleware.Admission(
		s.config.Server.MaxConcurrentAnalyses,
		s.config.Server.RequestTimeout,
		s.logger,
	)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Group(func(r chi.Router) {
			if requireToken != nil {
				r.Use(requireToken)
			}

			r.Group(func(r chi.Router) {
				r.Use(admission)
				r.Use(chimiddleware.Timeout(s.config.Server.RequestTimeout))
				r.Post("/analysis", analysisHandler.HandleRun)
				r.Get("/sandbox/check", analysisHandler.HandleCheck)
			})

			r.Route("/folders", func(r chi.Router) {
				r.Post("/", datasetHandler.HandleCreateFolder)
				r.Get("/", datasetHandler.HandleListFolders)
				r.Get("/{id}", datasetHandler.HandleGetFolder)
				r.Delete("/{id}", datasetHandler.HandleDeleteFolder)
				r.Post("/{id}/files", datasetHandler.HandleUpload)
				r.Get("/{id}/files", datasetHandler.HandleListFiles)
			})

			r.Route("/files/{id}", func(r chi.Router) {
				r.Get("/", datasetHandler.HandleGetFile)
				r.Get("/content", datasetHandler.HandleContent)
				r.Get("/preview", datasetHandler.HandlePreview)
				r.Delete("/", datasetHandler.HandleDeleteFile)
			})
		})
	})

	return nil
}

// Start runs the HTTP server until ctx ends or SIGINT/SIGTERM arrives, then
// shuts down gracefully:
//  1. stop accepting connections and wait for in-flight analyses, whose
//     environments are reclaimed as each request returns
//  2. sweep expired environments left by earlier crashes
//  3. close the database
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	if s.provider != nil && s.config.Sandbox.SweepOnStart {
		s.sweep(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Analyses can run for minutes; the per route timeout bounds them.
		WriteTimeout: s.config.Server.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Server.DBPath),
			slog.Bool("sandbox", s.provider != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if s.provider != nil {
		s.sweep(shutdownCtx)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	if _, err := s.provider.Sweep(ctx, false); err != nil {
		s.logger.Warn("environment sweep failed", slog.String("error", err.Error()))
	}
}
