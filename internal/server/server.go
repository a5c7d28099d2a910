// Package server provides the HTTP API for Shirabe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/coordinator"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Shirabe API.
type Server struct {
	coord      *coordinator.Coordinator
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. configPath may be
// empty, in which case settings changes are not persisted.
func NewServer(coord *coordinator.Coordinator, cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		coord:      coord,
		config:     cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/suggestions", s.handleSuggestions)
	r.Post("/api/v1/rebuild", s.handleRebuild)
	r.Put("/api/v1/settings", s.handleSettings)
	r.Post("/api/v1/commands/{id}/execute", s.handleExecuteCommand)
	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
