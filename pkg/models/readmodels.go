package models

import "time"

// RunFacts is one row of the run_facts read model: the denormalised fact
// record for a single run.
type RunFacts struct {
	OrgID        string     `json:"org_id"`
	RunID        string     `json:"run_id"`
	SessionID    *string    `json:"session_id"`
	UserID       *string    `json:"user_id"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	Status       *string    `json:"status"`
	DurationMS   *int64     `json:"duration_ms"`
	Cost         string     `json:"cost"`
	InputTokens  *int64     `json:"input_tokens"`
	OutputTokens *int64     `json:"output_tokens"`
	ErrorType    *string    `json:"error_type"`
}

// SessionStats is one row of the session_stats read model: per-session
// aggregates folded from the session's events.
type SessionStats struct {
	OrgID                   string     `json:"org_id"`
	SessionID               string     `json:"session_id"`
	UserID                  *string    `json:"user_id"`
	FirstMessageAt          *time.Time `json:"first_message_at"`
	LastEventAt             *time.Time `json:"last_event_at"`
	RunsCount               int64      `json:"runs_count"`
	ActiveAgentTimeMS       int64      `json:"active_agent_time_ms"`
	HandoffsCount           int64      `json:"handoffs_count"`
	LastHandoffAt           *time.Time `json:"last_handoff_at"`
	HasPostHandoffIteration bool       `json:"has_post_handoff_iteration"`
	SuccessRuns             int64      `json:"success_runs"`
	FailedRuns              int64      `json:"failed_runs"`
	CostTotal               string     `json:"cost_total"`
	InputTokensTotal        int64      `json:"input_tokens_total"`
	OutputTokensTotal       int64      `json:"output_tokens_total"`
}

// DailyCounters holds the counter columns shared by the org and user daily
// read models.
type DailyCounters struct {
	SessionsCount           int64  `json:"sessions_count"`
	SessionsWithHandoff     int64  `json:"sessions_with_handoff"`
	SessionsWithPostHandoff int64  `json:"sessions_with_post_handoff"`
	RunsCount               int64  `json:"runs_count"`
	SuccessRuns             int64  `json:"success_runs"`
	FailedRuns              int64  `json:"failed_runs"`
	ErrorsTool              int64  `json:"errors_tool"`
	ErrorsModel             int64  `json:"errors_model"`
	ErrorsTimeout           int64  `json:"errors_timeout"`
	ErrorsOther             int64  `json:"errors_other"`
	TotalDurationMS         int64  `json:"total_duration_ms"`
	TotalCost               string `json:"total_cost"`
	TotalInputTokens        int64  `json:"total_input_tokens"`
	TotalOutputTokens       int64  `json:"total_output_tokens"`
}

// OrgStatsDaily is one row of the org_stats_daily read model.
type OrgStatsDaily struct {
	OrgID string    `json:"org_id"`
	Day   time.Time `json:"day"`
	DailyCounters
	// ActiveUsersCount is declared in the schema but not maintained by the
	// projectors; a future finalisation pass over user_stats_daily owns it.
	ActiveUsersCount int64 `json:"active_users_count"`
}

// UserStatsDaily is one row of the user_stats_daily read model.
type UserStatsDaily struct {
	OrgID  string    `json:"org_id"`
	UserID string    `json:"user_id"`
	Day    time.Time `json:"day"`
	DailyCounters
}
