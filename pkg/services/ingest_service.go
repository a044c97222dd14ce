// Package services holds the business logic between the HTTP handlers and the
// database: durable event ingestion and read-model point reads.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eremenai/agentlytics/pkg/models"
)

// Batch size bounds for one ingest request.
const (
	MinBatchSize = 1
	MaxBatchSize = 100
)

// IngestEventError describes why one event of a batch was rejected.
type IngestEventError struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message"`
}

// IngestResult is the outcome of persisting one batch.
type IngestResult struct {
	Accepted int
	EventIDs []string
	Errors   []IngestEventError
}

// IngestService validates event batches and persists them to the raw log and
// the work queue.
type IngestService struct {
	pool *pgxpool.Pool
}

// NewIngestService creates an IngestService.
func NewIngestService(pool *pgxpool.Pool) *IngestService {
	return &IngestService{pool: pool}
}

// ValidateBatch checks the whole batch before any insert. A non-empty return
// means the batch is rejected outright (nothing persisted).
func (s *IngestService) ValidateBatch(events []models.Event) []IngestEventError {
	var errs []IngestEventError
	for i := range events {
		if err := events[i].Validate(); err != nil {
			errs = append(errs, IngestEventError{
				Index:   i,
				EventID: events[i].EventID,
				Message: err.Error(),
			})
		}
	}
	return errs
}

// IngestBatch persists a validated batch in one transaction. Each event is
// inserted into events_raw and events_queue under insert-if-absent semantics;
// an (org_id, event_id) that already exists is silently accepted so client
// retries are idempotent. Per-event driver errors are isolated by savepoints
// and captured into the result instead of aborting the transaction. An error
// return means the transaction itself failed and nothing was persisted.
func (s *IngestService) IngestBatch(ctx context.Context, events []models.Event) (*IngestResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result := &IngestResult{}
	for i := range events {
		ev := &events[i]

		// Savepoint per event: a driver error poisons only this event.
		inner, err := tx.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		if err := s.insertEvent(ctx, inner, ev); err != nil {
			_ = inner.Rollback(ctx)
			slog.Warn("Event insert failed",
				"org_id", ev.OrgID, "event_id", ev.EventID, "error", err)
			result.Errors = append(result.Errors, IngestEventError{
				Index:   i,
				EventID: ev.EventID,
				Message: err.Error(),
			})
			continue
		}
		if err := inner.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}

		result.Accepted++
		result.EventIDs = append(result.EventIDs, ev.EventID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}
	return result, nil
}

func (s *IngestService) insertEvent(ctx context.Context, tx pgx.Tx, ev *models.Event) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	// Ingest preserves occurred_at verbatim and never parses payloads beyond
	// validation; the raw log is the system of record.
	_, err := tx.Exec(ctx, `
		INSERT INTO events_raw (org_id, event_id, occurred_at, event_type, session_id, user_id, run_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (org_id, event_id) DO NOTHING`,
		ev.OrgID, ev.EventID, ev.OccurredAt, string(ev.EventType),
		ev.SessionID, ev.UserID, ev.RunID, []byte(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting events_raw: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events_queue (org_id, event_id)
		VALUES ($1, $2)
		ON CONFLICT (org_id, event_id) DO NOTHING`,
		ev.OrgID, ev.EventID,
	)
	if err != nil {
		return fmt.Errorf("inserting events_queue: %w", err)
	}
	return nil
}
