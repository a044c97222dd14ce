package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eremenai/agentlytics/pkg/projector"
)

// Dispatcher is the group-locking batch processor. It partitions a claimed
// batch by (org_id, user_id), opens one transaction per group, acquires the
// group's aggregate locks in canonical order, and projects the group's events
// one by one under savepoints so a poisonous event cannot take down its
// siblings.
type Dispatcher struct {
	pool *pgxpool.Pool
}

// NewDispatcher creates a dispatcher over the shared pool.
func NewDispatcher(pool *pgxpool.Pool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// eventGroup is one partition of a batch. Events keep claim order (the claimer
// returns them sorted by inserted_at, and grouping is stable).
type eventGroup struct {
	orgID  string
	userID *string
	events []*ClaimedEvent
}

// partitionBatch groups events by (org_id, user_id). Events with a null
// user_id form their own group per org. Group order follows first appearance
// in the batch; within a group, claim order is preserved.
func partitionBatch(batch []*ClaimedEvent) []*eventGroup {
	var groups []*eventGroup
	index := make(map[string]*eventGroup)

	for _, ev := range batch {
		key := ev.OrgID + "\x1f"
		if ev.UserID != nil {
			key += *ev.UserID
		}
		g, ok := index[key]
		if !ok {
			g = &eventGroup{orgID: ev.OrgID, userID: ev.UserID}
			index[key] = g
			groups = append(groups, g)
		}
		g.events = append(g.events, ev)
	}
	return groups
}

// Process dispatches the batch group by group and reports batch totals.
func (d *Dispatcher) Process(ctx context.Context, batch []*ClaimedEvent) BatchResult {
	var res BatchResult
	for _, group := range partitionBatch(batch) {
		gr := d.processGroup(ctx, group)
		res.Processed += gr.Processed
		res.Failed += gr.Failed
	}
	return res
}

// processGroup runs one group in one transaction. Per event: savepoint,
// project, then either mark processed (success) or roll back to the savepoint
// and record last_error (failure) — both inside the same transaction, so a
// savepoint rollback discards only that event's side effects. A failure of
// the transaction itself reverts the whole group and records last_error
// outside the transaction so every event is re-claimed on the next poll.
func (d *Dispatcher) processGroup(ctx context.Context, group *eventGroup) BatchResult {
	log := slog.With("org_id", group.orgID, "group_size", len(group.events))

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		log.Error("Failed to start group transaction", "error", err)
		d.recordGroupFailure(group, err)
		return BatchResult{Failed: len(group.events)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := acquireGroupLocks(ctx, tx, collectLockSet(group.events)); err != nil {
		log.Error("Failed to acquire group locks", "error", err)
		d.recordGroupFailure(group, err)
		return BatchResult{Failed: len(group.events)}
	}

	var res BatchResult
	for _, ev := range group.events {
		if ev.Missing {
			// Permanent: queue entry without a raw event. Never marked
			// processed, so the gap stays visible to operators.
			log.Error("Queue entry has no events_raw row",
				"event_id", ev.EventID, "attempts", ev.Attempts)
			if err := d.setLastError(ctx, tx, ev, fmt.Errorf("event not found in events_raw")); err != nil {
				d.recordGroupFailure(group, err)
				return BatchResult{Failed: len(group.events)}
			}
			res.Failed++
			continue
		}

		if err := d.projectOne(ctx, tx, ev); err != nil {
			slog.Warn("Event projection failed",
				"org_id", ev.OrgID, "event_id", ev.EventID,
				"event_type", ev.EventType, "attempts", ev.Attempts, "error", err)
			if err := d.setLastError(ctx, tx, ev, err); err != nil {
				d.recordGroupFailure(group, err)
				return BatchResult{Failed: len(group.events)}
			}
			res.Failed++
			continue
		}

		if err := d.markProcessed(ctx, tx, ev); err != nil {
			d.recordGroupFailure(group, err)
			return BatchResult{Failed: len(group.events)}
		}
		res.Processed++
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error("Failed to commit group transaction", "error", err)
		d.recordGroupFailure(group, err)
		return BatchResult{Failed: len(group.events)}
	}
	return res
}

// projectOne applies the projector under a savepoint (pgx nested transaction).
func (d *Dispatcher) projectOne(ctx context.Context, tx pgx.Tx, ev *ClaimedEvent) error {
	inner, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := projector.Apply(ctx, inner, &ev.Event); err != nil {
		_ = inner.Rollback(ctx)
		return err
	}
	if err := inner.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (d *Dispatcher) markProcessed(ctx context.Context, tx pgx.Tx, ev *ClaimedEvent) error {
	_, err := tx.Exec(ctx, `
		UPDATE events_queue
		SET processed_at = now(), last_error = NULL
		WHERE org_id = $1 AND event_id = $2`,
		ev.OrgID, ev.EventID)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (d *Dispatcher) setLastError(ctx context.Context, tx pgx.Tx, ev *ClaimedEvent, cause error) error {
	_, err := tx.Exec(ctx, `
		UPDATE events_queue
		SET last_error = $3
		WHERE org_id = $1 AND event_id = $2`,
		ev.OrgID, ev.EventID, truncateError(cause))
	if err != nil {
		return fmt.Errorf("failed to record event error: %w", err)
	}
	return nil
}

// recordGroupFailure writes last_error for every event in the group outside
// the (now dead) transaction, leaving processed_at null so the whole group is
// re-claimed on the next poll. Uses a fresh context: the group context may
// already be cancelled by shutdown.
func (d *Dispatcher) recordGroupFailure(group *eventGroup, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eventIDs := make([]string, len(group.events))
	for i, ev := range group.events {
		eventIDs[i] = ev.EventID
	}

	_, err := d.pool.Exec(ctx, `
		UPDATE events_queue
		SET last_error = $3
		WHERE org_id = $1 AND event_id = ANY($2) AND processed_at IS NULL`,
		group.orgID, eventIDs, truncateError(cause))
	if err != nil {
		slog.Error("Failed to record group failure",
			"org_id", group.orgID, "events", len(eventIDs), "error", err)
	}
}
