// Package queue provides the at-least-once work queue: claiming, group
// dispatch with ordered locking and savepoints, and the polling worker pool.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/eremenai/agentlytics/pkg/models"
)

// ErrNoEventsAvailable indicates the queue has no claimable entries.
var ErrNoEventsAvailable = errors.New("no events available")

// ClaimedEvent is one queue entry claimed for processing, hydrated from
// events_raw in the same statement.
type ClaimedEvent struct {
	models.Event

	// InsertedAt orders events within a group (claim order).
	InsertedAt time.Time

	// Attempts is the claim count after this claim's increment.
	Attempts int32

	// Missing marks a queue row with no events_raw counterpart. Treated as a
	// permanent error: last_error is recorded and the row is never marked
	// processed, so incorrect enqueue ordering cannot silently lose data.
	Missing bool
}

// BatchResult reports how a processed batch went.
type BatchResult struct {
	Processed int
	Failed    int
}

// Processor turns a claimed batch into projected read-model state.
// Implemented by the group-locking Dispatcher and the per-event fallback.
type Processor interface {
	Process(ctx context.Context, batch []*ClaimedEvent) BatchResult
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	DBReachable   bool           `json:"db_reachable"`
	DBError       string         `json:"db_error,omitempty"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int64          `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID              string       `json:"id"`
	Status          WorkerStatus `json:"status"`
	BatchesDone     int          `json:"batches_done"`
	EventsProcessed int          `json:"events_processed"`
	EventsFailed    int          `json:"events_failed"`
	LastActivity    time.Time    `json:"last_activity"`
}

// truncateError bounds driver error messages so they fit last_error storage.
// Stack traces are never persisted.
func truncateError(err error) string {
	const maxLen = 1024
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
