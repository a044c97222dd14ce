package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eremenai/agentlytics/pkg/database"
	"github.com/eremenai/agentlytics/pkg/version"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.Pool())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:   "unhealthy",
			Database: dbHealth,
		})
		return
	}

	response := HealthResponse{
		Status:   "healthy",
		Version:  version.String(),
		Database: dbHealth,
	}
	if s.workerPool != nil {
		poolHealth := s.workerPool.Health()
		response.WorkerPool = poolHealth
		if !poolHealth.IsHealthy {
			response.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, response)
}
