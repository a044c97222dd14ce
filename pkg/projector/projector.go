// Package projector folds raw telemetry events into the denormalised read
// models. Each projector translates one event into idempotent upserts; all
// counter arithmetic and min/max/coalesce folding is pushed into PostgreSQL so
// a single round-trip covers the computation under the row lock already held.
package projector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eremenai/agentlytics/pkg/models"
)

// Apply projects one event into the read models. It must run inside the
// dispatcher's group transaction, after the group's locks have been acquired.
// A nil return means the event is fully projected (or deliberately skipped)
// and may be marked processed; an error rolls back the event's savepoint.
func Apply(ctx context.Context, tx pgx.Tx, ev *models.Event) error {
	switch ev.EventType {
	case models.EventTypeMessageCreated:
		return applyMessageCreated(ctx, tx, ev)
	case models.EventTypeRunStarted:
		return applyRunStarted(ctx, tx, ev)
	case models.EventTypeRunCompleted:
		return applyRunCompleted(ctx, tx, ev)
	case models.EventTypeLocalHandoff:
		return applyLocalHandoff(ctx, tx, ev)
	default:
		// Forward compatibility: producers may ship event types this build
		// does not know. Skip and let the queue row be marked processed.
		slog.Warn("Skipping unknown event type",
			"org_id", ev.OrgID, "event_id", ev.EventID, "event_type", ev.EventType)
		return nil
	}
}

// sessionSnapshot is the projection-relevant slice of a session_stats row,
// read under the group lock before the event's writes.
type sessionSnapshot struct {
	exists         bool
	userID         *string
	firstMessageAt *time.Time
	lastHandoffAt  *time.Time
	handoffsCount  int64
	hasPostHandoff bool
}

func readSession(ctx context.Context, tx pgx.Tx, orgID, sessionID string) (sessionSnapshot, error) {
	var snap sessionSnapshot
	err := tx.QueryRow(ctx, `
		SELECT user_id, first_message_at, last_handoff_at, handoffs_count, has_post_handoff_iteration
		FROM session_stats
		WHERE org_id = $1 AND session_id = $2`,
		orgID, sessionID,
	).Scan(&snap.userID, &snap.firstMessageAt, &snap.lastHandoffAt, &snap.handoffsCount, &snap.hasPostHandoff)
	if errors.Is(err, pgx.ErrNoRows) {
		return sessionSnapshot{}, nil
	}
	if err != nil {
		return sessionSnapshot{}, err
	}
	snap.exists = true
	return snap, nil
}

// attributionDay resolves the day a per-session counter is attributed to: the
// session's first-message day when known, otherwise the triggering event's day.
func attributionDay(firstMessageAt *time.Time, occurredAt time.Time) time.Time {
	if firstMessageAt != nil {
		return models.DayUTC(*firstMessageAt)
	}
	return models.DayUTC(occurredAt)
}

func setPostHandoffFlag(ctx context.Context, tx pgx.Tx, orgID, sessionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE session_stats
		SET has_post_handoff_iteration = TRUE
		WHERE org_id = $1 AND session_id = $2`,
		orgID, sessionID)
	return err
}
