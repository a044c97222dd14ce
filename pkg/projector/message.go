package projector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eremenai/agentlytics/pkg/models"
)

// applyMessageCreated creates or extends a session. A session is "new" when no
// session_stats row existed before this event; only then does the session
// count toward the daily aggregates, attributed to this event's UTC day. The
// attribution day is frozen at first observation and never moves, even if an
// earlier message arrives later.
func applyMessageCreated(ctx context.Context, tx pgx.Tx, ev *models.Event) error {
	snap, err := readSession(ctx, tx, ev.OrgID, ev.SessionID)
	if err != nil {
		return fmt.Errorf("reading session_stats: %w", err)
	}
	isNewSession := !snap.exists

	_, err = tx.Exec(ctx, `
		INSERT INTO session_stats (org_id, session_id, user_id, first_message_at, last_event_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (org_id, session_id) DO UPDATE SET
			user_id          = COALESCE(session_stats.user_id, EXCLUDED.user_id),
			first_message_at = LEAST(COALESCE(session_stats.first_message_at, EXCLUDED.first_message_at), EXCLUDED.first_message_at),
			last_event_at    = GREATEST(COALESCE(session_stats.last_event_at, EXCLUDED.last_event_at), EXCLUDED.last_event_at)`,
		ev.OrgID, ev.SessionID, ev.UserID, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting session_stats: %w", err)
	}

	if isNewSession {
		day := models.DayUTC(ev.OccurredAt)
		if err := bumpDaily(ctx, tx, ev.OrgID, ev.UserID, day, dailyIncrements{sessions: 1}); err != nil {
			return fmt.Errorf("bumping daily sessions_count: %w", err)
		}
	}
	return nil
}
