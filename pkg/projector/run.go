package projector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/eremenai/agentlytics/pkg/models"
)

// applyRunStarted records the run's start in run_facts and extends the
// session's last_event_at. Ingest already rejects run events without a run_id;
// a missing one here means a legacy or hand-enqueued row, which is skipped
// rather than retried forever.
func applyRunStarted(ctx context.Context, tx pgx.Tx, ev *models.Event) error {
	if ev.RunID == nil || *ev.RunID == "" {
		slog.Warn("run_started event without run_id, skipping",
			"org_id", ev.OrgID, "event_id", ev.EventID)
		return nil
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO run_facts (org_id, run_id, session_id, user_id, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, run_id) DO UPDATE SET
			session_id = COALESCE(run_facts.session_id, EXCLUDED.session_id),
			user_id    = COALESCE(run_facts.user_id, EXCLUDED.user_id),
			started_at = LEAST(COALESCE(run_facts.started_at, EXCLUDED.started_at), EXCLUDED.started_at)`,
		ev.OrgID, *ev.RunID, ev.SessionID, ev.UserID, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting run_facts: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_stats (org_id, session_id, user_id, last_event_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, session_id) DO UPDATE SET
			user_id       = COALESCE(session_stats.user_id, EXCLUDED.user_id),
			last_event_at = GREATEST(COALESCE(session_stats.last_event_at, EXCLUDED.last_event_at), EXCLUDED.last_event_at)`,
		ev.OrgID, ev.SessionID, ev.UserID, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting session_stats: %w", err)
	}
	return nil
}

// applyRunCompleted is the heaviest projector: it finalises the run fact row,
// folds the run's numbers into the session aggregate, checks the post-handoff
// window, and feeds the daily aggregates.
func applyRunCompleted(ctx context.Context, tx pgx.Tx, ev *models.Event) error {
	if ev.RunID == nil || *ev.RunID == "" {
		slog.Warn("run_completed event without run_id, skipping",
			"org_id", ev.OrgID, "event_id", ev.EventID)
		return nil
	}

	payload, err := ev.DecodeRunCompleted()
	if err != nil {
		return err
	}
	isSuccess := payload.Status == models.RunStatusSuccess

	// Session state before this event decides the post-handoff window check.
	snap, err := readSession(ctx, tx, ev.OrgID, ev.SessionID)
	if err != nil {
		return fmt.Errorf("reading session_stats: %w", err)
	}

	var errorType *string
	if !isSuccess {
		et := string(payload.EffectiveErrorType())
		errorType = &et
	}

	// Payload fields are last-writer-wins; completed_at only moves forward.
	_, err = tx.Exec(ctx, `
		INSERT INTO run_facts (
			org_id, run_id, session_id, user_id, completed_at,
			status, duration_ms, cost, input_tokens, output_tokens, error_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11)
		ON CONFLICT (org_id, run_id) DO UPDATE SET
			session_id    = COALESCE(run_facts.session_id, EXCLUDED.session_id),
			user_id       = COALESCE(run_facts.user_id, EXCLUDED.user_id),
			completed_at  = GREATEST(COALESCE(run_facts.completed_at, EXCLUDED.completed_at), EXCLUDED.completed_at),
			status        = EXCLUDED.status,
			duration_ms   = EXCLUDED.duration_ms,
			cost          = EXCLUDED.cost,
			input_tokens  = EXCLUDED.input_tokens,
			output_tokens = EXCLUDED.output_tokens,
			error_type    = EXCLUDED.error_type`,
		ev.OrgID, *ev.RunID, ev.SessionID, ev.UserID, ev.OccurredAt,
		string(payload.Status), payload.DurationMS, payload.CostOrZero(),
		payload.InputTokens, payload.OutputTokens, errorType,
	)
	if err != nil {
		return fmt.Errorf("upserting run_facts: %w", err)
	}

	successInc, failedInc := int64(0), int64(1)
	if isSuccess {
		successInc, failedInc = 1, 0
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_stats (
			org_id, session_id, user_id, last_event_at,
			runs_count, active_agent_time_ms, success_runs, failed_runs,
			cost_total, input_tokens_total, output_tokens_total
		) VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $8::numeric, $9, $10)
		ON CONFLICT (org_id, session_id) DO UPDATE SET
			user_id              = COALESCE(session_stats.user_id, EXCLUDED.user_id),
			last_event_at        = GREATEST(COALESCE(session_stats.last_event_at, EXCLUDED.last_event_at), EXCLUDED.last_event_at),
			runs_count           = session_stats.runs_count + 1,
			active_agent_time_ms = session_stats.active_agent_time_ms + EXCLUDED.active_agent_time_ms,
			success_runs         = session_stats.success_runs + EXCLUDED.success_runs,
			failed_runs          = session_stats.failed_runs + EXCLUDED.failed_runs,
			cost_total           = session_stats.cost_total + EXCLUDED.cost_total,
			input_tokens_total   = session_stats.input_tokens_total + EXCLUDED.input_tokens_total,
			output_tokens_total  = session_stats.output_tokens_total + EXCLUDED.output_tokens_total`,
		ev.OrgID, ev.SessionID, ev.UserID, ev.OccurredAt,
		payload.DurationMS, successInc, failedInc,
		payload.CostOrZero(), payload.InputTokens, payload.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("upserting session_stats: %w", err)
	}

	// Post-handoff window: a completion inside (last_handoff_at, +4h] flips the
	// session flag once, attributed to the session's first-message day.
	if snap.lastHandoffAt != nil && !snap.hasPostHandoff &&
		models.InPostHandoffWindow(*snap.lastHandoffAt, ev.OccurredAt) {
		if err := setPostHandoffFlag(ctx, tx, ev.OrgID, ev.SessionID); err != nil {
			return fmt.Errorf("setting post-handoff flag: %w", err)
		}
		day := attributionDay(snap.firstMessageAt, ev.OccurredAt)
		if err := bumpDaily(ctx, tx, ev.OrgID, ev.UserID, day, dailyIncrements{sessionsWithPostHandoff: 1}); err != nil {
			return fmt.Errorf("bumping daily sessions_with_post_handoff: %w", err)
		}
	}

	inc := dailyIncrements{
		runs:         1,
		successRuns:  successInc,
		failedRuns:   failedInc,
		durationMS:   payload.DurationMS,
		cost:         payload.CostOrZero(),
		inputTokens:  payload.InputTokens,
		outputTokens: payload.OutputTokens,
	}
	if !isSuccess {
		switch payload.EffectiveErrorType() {
		case models.ErrorTypeTool:
			inc.errorsTool = 1
		case models.ErrorTypeModel:
			inc.errorsModel = 1
		case models.ErrorTypeTimeout:
			inc.errorsTimeout = 1
		default:
			inc.errorsOther = 1
		}
	}
	if err := bumpDaily(ctx, tx, ev.OrgID, ev.UserID, models.DayUTC(ev.OccurredAt), inc); err != nil {
		return fmt.Errorf("bumping daily run counters: %w", err)
	}
	return nil
}
