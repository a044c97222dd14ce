package projector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eremenai/agentlytics/pkg/models"
)

// applyLocalHandoff folds a handoff into the session aggregate, retroactively
// checks for runs already completed inside the post-handoff window (handoff
// events can arrive after the runs they precede), and counts the session's
// first handoff toward the daily aggregates.
func applyLocalHandoff(ctx context.Context, tx pgx.Tx, ev *models.Event) error {
	if _, err := ev.DecodeLocalHandoff(); err != nil {
		return err
	}

	snap, err := readSession(ctx, tx, ev.OrgID, ev.SessionID)
	if err != nil {
		return fmt.Errorf("reading session_stats: %w", err)
	}
	// Guarded by the read under the group lock: at most one first-handoff
	// increment per session, ever.
	isFirstHandoff := !snap.exists || snap.handoffsCount == 0

	_, err = tx.Exec(ctx, `
		INSERT INTO session_stats (org_id, session_id, user_id, handoffs_count, last_handoff_at, last_event_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (org_id, session_id) DO UPDATE SET
			user_id         = COALESCE(session_stats.user_id, EXCLUDED.user_id),
			handoffs_count  = session_stats.handoffs_count + 1,
			last_handoff_at = GREATEST(COALESCE(session_stats.last_handoff_at, EXCLUDED.last_handoff_at), EXCLUDED.last_handoff_at),
			last_event_at   = GREATEST(COALESCE(session_stats.last_event_at, EXCLUDED.last_event_at), EXCLUDED.last_event_at)`,
		ev.OrgID, ev.SessionID, ev.UserID, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting session_stats: %w", err)
	}

	// Retroactive window check: a run completed inside (occurred_at, +4h]
	// may already be in run_facts if the handoff event arrived late.
	if !snap.hasPostHandoff {
		var runInWindow bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM run_facts
				WHERE org_id = $1 AND session_id = $2
				  AND completed_at > $3 AND completed_at <= $4
			)`,
			ev.OrgID, ev.SessionID, ev.OccurredAt, ev.OccurredAt.Add(models.PostHandoffWindow),
		).Scan(&runInWindow)
		if err != nil {
			return fmt.Errorf("checking retroactive post-handoff window: %w", err)
		}
		if runInWindow {
			if err := setPostHandoffFlag(ctx, tx, ev.OrgID, ev.SessionID); err != nil {
				return fmt.Errorf("setting post-handoff flag: %w", err)
			}
			day := attributionDay(snap.firstMessageAt, ev.OccurredAt)
			if err := bumpDaily(ctx, tx, ev.OrgID, ev.UserID, day, dailyIncrements{sessionsWithPostHandoff: 1}); err != nil {
				return fmt.Errorf("bumping daily sessions_with_post_handoff: %w", err)
			}
		}
	}

	if isFirstHandoff {
		day := attributionDay(snap.firstMessageAt, ev.OccurredAt)
		if err := bumpDaily(ctx, tx, ev.OrgID, ev.UserID, day, dailyIncrements{sessionsWithHandoff: 1}); err != nil {
			return fmt.Errorf("bumping daily sessions_with_handoff: %w", err)
		}
	}
	return nil
}
