// Package server provides the HTTP API for Tazune.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tazune/internal/config"
	"github.com/hyperjump/tazune/internal/ingest"
	"github.com/hyperjump/tazune/internal/rag"
	"github.com/hyperjump/tazune/internal/storage"
	"github.com/hyperjump/tazune/internal/vector"
)

// WatchService is the subset of the directory watcher the API needs.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Tazune API.
type Server struct {
	engine  *rag.Engine
	ingest  *ingest.Service
	storage storage.Storage
	index   vector.Index
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	watch       WatchService
	configPath  string
	fullConfig  *config.Config
	fullConfigM sync.Mutex
}

// NewServer creates a server with the given dependencies. watch, configPath,
// and fullConfig are optional; watch endpoints return 501 when watch is nil.
func NewServer(
	engine *rag.Engine,
	ingestSvc *ingest.Service,
	store storage.Storage,
	index vector.Index,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	fullConfig *config.Config,
) *Server {
	return &Server{
		engine:     engine,
		ingest:     ingestSvc,
		storage:    store,
		index:      index,
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
		fullConfig: fullConfig,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/query", s.handleQuery)
		r.Post("/api/v1/documents", s.handleCreateDocument)
		r.Post("/api/v1/documents/upload", s.handleUpload)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
		r.Post("/api/v1/sources/sync", s.handleSourcesSync)
		r.Get("/api/v1/jobs", s.handleListJobs)
		r.Get("/api/v1/jobs/{id}", s.handleGetJob)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
		r.Get("/health", s.handleHealth)
	})

	// The streaming route runs without the timeout middleware: answers can
	// legitimately take longer than a minute, and SSE must not be buffered
	// by the compressor.
	r.Post("/api/v1/query/stream", s.handleQueryStream)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
