package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eremenai/agentlytics/pkg/models"
)

// StatsService serves point and range reads over the read models for the
// dashboard. Reads are keyed exactly on the read-model primary keys; no
// ad-hoc analytics happen here.
type StatsService struct {
	pool *pgxpool.Pool
}

// NewStatsService creates a StatsService.
func NewStatsService(pool *pgxpool.Pool) *StatsService {
	return &StatsService{pool: pool}
}

// GetSessionStats returns the aggregate row for one session.
func (s *StatsService) GetSessionStats(ctx context.Context, orgID, sessionID string) (*models.SessionStats, error) {
	var st models.SessionStats
	err := s.pool.QueryRow(ctx, `
		SELECT org_id, session_id, user_id, first_message_at, last_event_at,
		       runs_count, active_agent_time_ms, handoffs_count, last_handoff_at,
		       has_post_handoff_iteration, success_runs, failed_runs,
		       cost_total::text, input_tokens_total, output_tokens_total
		FROM session_stats
		WHERE org_id = $1 AND session_id = $2`,
		orgID, sessionID,
	).Scan(
		&st.OrgID, &st.SessionID, &st.UserID, &st.FirstMessageAt, &st.LastEventAt,
		&st.RunsCount, &st.ActiveAgentTimeMS, &st.HandoffsCount, &st.LastHandoffAt,
		&st.HasPostHandoffIteration, &st.SuccessRuns, &st.FailedRuns,
		&st.CostTotal, &st.InputTokensTotal, &st.OutputTokensTotal,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return &st, nil
}

// GetRunFacts returns the fact row for one run.
func (s *StatsService) GetRunFacts(ctx context.Context, orgID, runID string) (*models.RunFacts, error) {
	var rf models.RunFacts
	err := s.pool.QueryRow(ctx, `
		SELECT org_id, run_id, session_id, user_id, started_at, completed_at,
		       status, duration_ms, cost::text, input_tokens, output_tokens, error_type
		FROM run_facts
		WHERE org_id = $1 AND run_id = $2`,
		orgID, runID,
	).Scan(
		&rf.OrgID, &rf.RunID, &rf.SessionID, &rf.UserID, &rf.StartedAt, &rf.CompletedAt,
		&rf.Status, &rf.DurationMS, &rf.Cost, &rf.InputTokens, &rf.OutputTokens, &rf.ErrorType,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run facts: %w", err)
	}
	return &rf, nil
}

// ListOrgDaily returns the org daily rows in [from, to], ascending.
func (s *StatsService) ListOrgDaily(ctx context.Context, orgID string, from, to time.Time) ([]models.OrgStatsDaily, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT org_id, day,
		       sessions_count, sessions_with_handoff, sessions_with_post_handoff,
		       runs_count, success_runs, failed_runs,
		       errors_tool, errors_model, errors_timeout, errors_other,
		       total_duration_ms, total_cost::text, total_input_tokens, total_output_tokens,
		       active_users_count
		FROM org_stats_daily
		WHERE org_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day`,
		orgID, models.DayUTC(from), models.DayUTC(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list org daily stats: %w", err)
	}
	defer rows.Close()

	var out []models.OrgStatsDaily
	for rows.Next() {
		var d models.OrgStatsDaily
		if err := rows.Scan(
			&d.OrgID, &d.Day,
			&d.SessionsCount, &d.SessionsWithHandoff, &d.SessionsWithPostHandoff,
			&d.RunsCount, &d.SuccessRuns, &d.FailedRuns,
			&d.ErrorsTool, &d.ErrorsModel, &d.ErrorsTimeout, &d.ErrorsOther,
			&d.TotalDurationMS, &d.TotalCost, &d.TotalInputTokens, &d.TotalOutputTokens,
			&d.ActiveUsersCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan org daily row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read org daily rows: %w", err)
	}
	return out, nil
}

// ListUserDaily returns the user daily rows in [from, to], ascending.
func (s *StatsService) ListUserDaily(ctx context.Context, orgID, userID string, from, to time.Time) ([]models.UserStatsDaily, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT org_id, user_id, day,
		       sessions_count, sessions_with_handoff, sessions_with_post_handoff,
		       runs_count, success_runs, failed_runs,
		       errors_tool, errors_model, errors_timeout, errors_other,
		       total_duration_ms, total_cost::text, total_input_tokens, total_output_tokens
		FROM user_stats_daily
		WHERE org_id = $1 AND user_id = $2 AND day >= $3 AND day <= $4
		ORDER BY day`,
		orgID, userID, models.DayUTC(from), models.DayUTC(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user daily stats: %w", err)
	}
	defer rows.Close()

	var out []models.UserStatsDaily
	for rows.Next() {
		var d models.UserStatsDaily
		if err := rows.Scan(
			&d.OrgID, &d.UserID, &d.Day,
			&d.SessionsCount, &d.SessionsWithHandoff, &d.SessionsWithPostHandoff,
			&d.RunsCount, &d.SuccessRuns, &d.FailedRuns,
			&d.ErrorsTool, &d.ErrorsModel, &d.ErrorsTimeout, &d.ErrorsOther,
			&d.TotalDurationMS, &d.TotalCost, &d.TotalInputTokens, &d.TotalOutputTokens,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user daily row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user daily rows: %w", err)
	}
	return out, nil
}
