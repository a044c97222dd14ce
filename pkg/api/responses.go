package api

import (
	"github.com/eremenai/agentlytics/pkg/database"
	"github.com/eremenai/agentlytics/pkg/queue"
	"github.com/eremenai/agentlytics/pkg/services"
)

// IngestResponse is returned by POST /api/v1/events.
type IngestResponse struct {
	Accepted int                         `json:"accepted"`
	EventIDs []string                    `json:"event_ids"`
	Errors   []services.IngestEventError `json:"errors,omitempty"`
}

// ErrorResponse is the generic error body for the read endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	Database   *database.HealthStatus `json:"database,omitempty"`
	WorkerPool *queue.PoolHealth      `json:"worker_pool,omitempty"`
}
