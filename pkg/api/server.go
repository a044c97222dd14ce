// Package api provides the HTTP surface: event ingestion, read-model point
// reads for the dashboard, health, and metrics.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eremenai/agentlytics/pkg/database"
	"github.com/eremenai/agentlytics/pkg/queue"
	"github.com/eremenai/agentlytics/pkg/services"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	dbClient   *database.Client
	ingest     *services.IngestService
	stats      *services.StatsService
	workerPool *queue.WorkerPool // nil when this replica runs API-only
}

// NewServer creates the API server and registers all routes.
// workerPool may be nil (API-only replica; health omits pool status).
func NewServer(dbClient *database.Client, ingest *services.IngestService, stats *services.StatsService, workerPool *queue.WorkerPool) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:     router,
		dbClient:   dbClient,
		ingest:     ingest,
		stats:      stats,
		workerPool: workerPool,
	}
	s.setupRoutes()
	return s
}

// Router exposes the gin engine for test servers.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.POST("/events", s.ingestEventsHandler)

	// Dashboard reads, keyed on the read-model primary keys.
	v1.GET("/orgs/:org_id/sessions/:session_id/stats", s.getSessionStatsHandler)
	v1.GET("/orgs/:org_id/runs/:run_id", s.getRunFactsHandler)
	v1.GET("/orgs/:org_id/stats/daily", s.listOrgDailyHandler)
	v1.GET("/orgs/:org_id/users/:user_id/stats/daily", s.listUserDailyHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
