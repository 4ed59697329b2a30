// Package api provides the HTTP API for scheduling posts and inspecting
// dispatcher state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/publish-dispatcher/internal/circuitbreaker"
	"github.com/publish-dispatcher/internal/dispatcher"
	"github.com/publish-dispatcher/internal/logging"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/ratelimit"
)

// JobStore is the scheduled post persistence the API reads and writes.
type JobStore interface {
	Create(ctx context.Context, post *models.ScheduledPost) error
	GetByID(ctx context.Context, jobID string) (*models.ScheduledPost, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.ScheduledPost, error)
	Cancel(ctx context.Context, jobID, ownerID string) error
}

// ResultStore reads the per-attempt audit log.
type ResultStore interface {
	ListByJob(ctx context.Context, jobID string) ([]*models.PublishResultRecord, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	jobs       JobStore
	results    ResultStore
	breakers   *circuitbreaker.Manager
	tracker    *ratelimit.Tracker
	poller     *dispatcher.Poller
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	jobs JobStore,
	results ResultStore,
	breakers *circuitbreaker.Manager,
	tracker *ratelimit.Tracker,
	poller *dispatcher.Poller,
) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		jobs:     jobs,
		results:  results,
		breakers: breakers,
		tracker:  tracker,
		poller:   poller,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Scheduled post endpoints
	api.HandleFunc("/posts", s.handleCreatePost).Methods("POST")
	api.HandleFunc("/posts", s.handleListPosts).Methods("GET")
	api.HandleFunc("/posts/{id}", s.handleGetPost).Methods("GET")
	api.HandleFunc("/posts/{id}", s.handleCancelPost).Methods("DELETE")
	api.HandleFunc("/posts/{id}/results", s.handleGetResults).Methods("GET")

	// Dispatcher status endpoints
	api.HandleFunc("/status/circuits", s.handleCircuitStats).Methods("GET")
	api.HandleFunc("/status/ratelimits", s.handleRateLimitStats).Methods("GET")
	api.HandleFunc("/status/poller", s.handlePollerStats).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "publish-dispatcher",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying router. Used in tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
