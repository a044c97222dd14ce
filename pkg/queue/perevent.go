package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eremenai/agentlytics/pkg/projector"
)

// PerEventProcessor is the compatibility/debugging fallback selected by
// WORKER_USE_BATCH_PROCESSOR=false. It processes one event per transaction
// without explicit aggregate locking, accepting lower throughput and weaker
// ordering; upsert conflicts on the primary keys still keep writes atomic.
type PerEventProcessor struct {
	pool *pgxpool.Pool
}

// NewPerEventProcessor creates the per-event fallback processor.
func NewPerEventProcessor(pool *pgxpool.Pool) *PerEventProcessor {
	return &PerEventProcessor{pool: pool}
}

// Process projects each event in its own transaction.
func (p *PerEventProcessor) Process(ctx context.Context, batch []*ClaimedEvent) BatchResult {
	var res BatchResult
	for _, ev := range batch {
		if err := p.processOne(ctx, ev); err != nil {
			slog.Warn("Event projection failed",
				"org_id", ev.OrgID, "event_id", ev.EventID,
				"event_type", ev.EventType, "attempts", ev.Attempts, "error", err)
			p.recordFailure(ev, err)
			res.Failed++
			continue
		}
		res.Processed++
	}
	return res
}

func (p *PerEventProcessor) processOne(ctx context.Context, ev *ClaimedEvent) error {
	if ev.Missing {
		return fmt.Errorf("event not found in events_raw")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := projector.Apply(ctx, tx, &ev.Event); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE events_queue
		SET processed_at = now(), last_error = NULL
		WHERE org_id = $1 AND event_id = $2`,
		ev.OrgID, ev.EventID)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (p *PerEventProcessor) recordFailure(ev *ClaimedEvent, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		UPDATE events_queue
		SET last_error = $3
		WHERE org_id = $1 AND event_id = $2 AND processed_at IS NULL`,
		ev.OrgID, ev.EventID, truncateError(cause))
	if err != nil {
		slog.Error("Failed to record event failure",
			"org_id", ev.OrgID, "event_id", ev.EventID, "error", err)
	}
}
