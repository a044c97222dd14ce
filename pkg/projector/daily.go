package projector

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// dailyIncrements is one additive delta against a daily aggregate row. Cost is
// a decimal string fed into a NUMERIC parameter; every other field is a plain
// counter.
type dailyIncrements struct {
	sessions                int64
	sessionsWithHandoff     int64
	sessionsWithPostHandoff int64
	runs                    int64
	successRuns             int64
	failedRuns              int64
	errorsTool              int64
	errorsModel             int64
	errorsTimeout           int64
	errorsOther             int64
	durationMS              int64
	cost                    string
	inputTokens             int64
	outputTokens            int64
}

func (d dailyIncrements) costOrZero() string {
	if d.cost == "" {
		return "0"
	}
	return d.cost
}

// bumpOrgDaily applies the delta to org_stats_daily, creating the row on
// first touch. active_users_count is intentionally left alone.
func bumpOrgDaily(ctx context.Context, tx pgx.Tx, orgID string, day time.Time, inc dailyIncrements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO org_stats_daily (
			org_id, day,
			sessions_count, sessions_with_handoff, sessions_with_post_handoff,
			runs_count, success_runs, failed_runs,
			errors_tool, errors_model, errors_timeout, errors_other,
			total_duration_ms, total_cost, total_input_tokens, total_output_tokens
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::numeric, $15, $16)
		ON CONFLICT (org_id, day) DO UPDATE SET
			sessions_count             = org_stats_daily.sessions_count + EXCLUDED.sessions_count,
			sessions_with_handoff      = org_stats_daily.sessions_with_handoff + EXCLUDED.sessions_with_handoff,
			sessions_with_post_handoff = org_stats_daily.sessions_with_post_handoff + EXCLUDED.sessions_with_post_handoff,
			runs_count                 = org_stats_daily.runs_count + EXCLUDED.runs_count,
			success_runs               = org_stats_daily.success_runs + EXCLUDED.success_runs,
			failed_runs                = org_stats_daily.failed_runs + EXCLUDED.failed_runs,
			errors_tool                = org_stats_daily.errors_tool + EXCLUDED.errors_tool,
			errors_model               = org_stats_daily.errors_model + EXCLUDED.errors_model,
			errors_timeout             = org_stats_daily.errors_timeout + EXCLUDED.errors_timeout,
			errors_other               = org_stats_daily.errors_other + EXCLUDED.errors_other,
			total_duration_ms          = org_stats_daily.total_duration_ms + EXCLUDED.total_duration_ms,
			total_cost                 = org_stats_daily.total_cost + EXCLUDED.total_cost,
			total_input_tokens         = org_stats_daily.total_input_tokens + EXCLUDED.total_input_tokens,
			total_output_tokens        = org_stats_daily.total_output_tokens + EXCLUDED.total_output_tokens`,
		orgID, day,
		inc.sessions, inc.sessionsWithHandoff, inc.sessionsWithPostHandoff,
		inc.runs, inc.successRuns, inc.failedRuns,
		inc.errorsTool, inc.errorsModel, inc.errorsTimeout, inc.errorsOther,
		inc.durationMS, inc.costOrZero(), inc.inputTokens, inc.outputTokens,
	)
	return err
}

// bumpUserDaily mirrors bumpOrgDaily into user_stats_daily.
func bumpUserDaily(ctx context.Context, tx pgx.Tx, orgID, userID string, day time.Time, inc dailyIncrements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_stats_daily (
			org_id, user_id, day,
			sessions_count, sessions_with_handoff, sessions_with_post_handoff,
			runs_count, success_runs, failed_runs,
			errors_tool, errors_model, errors_timeout, errors_other,
			total_duration_ms, total_cost, total_input_tokens, total_output_tokens
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::numeric, $16, $17)
		ON CONFLICT (org_id, user_id, day) DO UPDATE SET
			sessions_count             = user_stats_daily.sessions_count + EXCLUDED.sessions_count,
			sessions_with_handoff      = user_stats_daily.sessions_with_handoff + EXCLUDED.sessions_with_handoff,
			sessions_with_post_handoff = user_stats_daily.sessions_with_post_handoff + EXCLUDED.sessions_with_post_handoff,
			runs_count                 = user_stats_daily.runs_count + EXCLUDED.runs_count,
			success_runs               = user_stats_daily.success_runs + EXCLUDED.success_runs,
			failed_runs                = user_stats_daily.failed_runs + EXCLUDED.failed_runs,
			errors_tool                = user_stats_daily.errors_tool + EXCLUDED.errors_tool,
			errors_model               = user_stats_daily.errors_model + EXCLUDED.errors_model,
			errors_timeout             = user_stats_daily.errors_timeout + EXCLUDED.errors_timeout,
			errors_other               = user_stats_daily.errors_other + EXCLUDED.errors_other,
			total_duration_ms          = user_stats_daily.total_duration_ms + EXCLUDED.total_duration_ms,
			total_cost                 = user_stats_daily.total_cost + EXCLUDED.total_cost,
			total_input_tokens         = user_stats_daily.total_input_tokens + EXCLUDED.total_input_tokens,
			total_output_tokens        = user_stats_daily.total_output_tokens + EXCLUDED.total_output_tokens`,
		orgID, userID, day,
		inc.sessions, inc.sessionsWithHandoff, inc.sessionsWithPostHandoff,
		inc.runs, inc.successRuns, inc.failedRuns,
		inc.errorsTool, inc.errorsModel, inc.errorsTimeout, inc.errorsOther,
		inc.durationMS, inc.costOrZero(), inc.inputTokens, inc.outputTokens,
	)
	return err
}

// bumpDaily applies the delta to the org aggregate and, when the event carries
// a user, mirrors it into the user aggregate.
func bumpDaily(ctx context.Context, tx pgx.Tx, orgID string, userID *string, day time.Time, inc dailyIncrements) error {
	if err := bumpOrgDaily(ctx, tx, orgID, day, inc); err != nil {
		return err
	}
	if userID != nil {
		return bumpUserDaily(ctx, tx, orgID, *userID, day, inc)
	}
	return nil
}
