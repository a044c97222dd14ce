package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eremenai/agentlytics/pkg/models"
)

// groupLockSet is the set of aggregate keys a group's events touch, in the
// canonical lock order: org-daily days, user-daily days, sessions, runs.
// Keys are deduplicated and sorted so every worker acquires them in the same
// global order, which is what makes concurrent groups deadlock-free.
type groupLockSet struct {
	orgID    string
	userID   *string
	days     []time.Time
	sessions []string
	runs     []string
}

// collectLockSet derives the lock keys for a group. Days are the UTC days of
// the events' occurred_at. Handoff and post-handoff increments may resolve to
// the session's first-message day, which is not necessarily in this set; those
// daily upserts serialise only on the daily row's own lock.
func collectLockSet(group []*ClaimedEvent) groupLockSet {
	ls := groupLockSet{}
	daySet := make(map[time.Time]struct{})
	sessionSet := make(map[string]struct{})
	runSet := make(map[string]struct{})

	for _, ev := range group {
		if ev.Missing {
			continue
		}
		ls.orgID = ev.OrgID
		if ls.userID == nil && ev.UserID != nil {
			ls.userID = ev.UserID
		}
		daySet[models.DayUTC(ev.OccurredAt)] = struct{}{}
		sessionSet[ev.SessionID] = struct{}{}
		if ev.RunID != nil && *ev.RunID != "" {
			runSet[*ev.RunID] = struct{}{}
		}
	}

	for day := range daySet {
		ls.days = append(ls.days, day)
	}
	sort.Slice(ls.days, func(i, j int) bool { return ls.days[i].Before(ls.days[j]) })
	for s := range sessionSet {
		ls.sessions = append(ls.sessions, s)
	}
	sort.Strings(ls.sessions)
	for r := range runSet {
		ls.runs = append(ls.runs, r)
	}
	sort.Strings(ls.runs)
	return ls
}

// acquireGroupLocks serialises the group against every other group touching
// the same aggregates. Per key, in canonical order: first a transaction-scoped
// advisory lock on a stable hash of the key (rows that do not exist yet cannot
// be row-locked, and "is this row new" is projection-relevant state), then a
// blocking SELECT ... FOR UPDATE on the row when present.
func acquireGroupLocks(ctx context.Context, tx pgx.Tx, ls groupLockSet) error {
	for _, day := range ls.days {
		if err := lockKey(ctx, tx,
			`SELECT 1 FROM org_stats_daily WHERE org_id = $1 AND day = $2 FOR UPDATE`,
			"org_stats_daily", []any{ls.orgID, day}, ls.orgID, day.Format("2006-01-02")); err != nil {
			return fmt.Errorf("locking org_stats_daily: %w", err)
		}
	}
	if ls.userID != nil {
		for _, day := range ls.days {
			if err := lockKey(ctx, tx,
				`SELECT 1 FROM user_stats_daily WHERE org_id = $1 AND user_id = $2 AND day = $3 FOR UPDATE`,
				"user_stats_daily", []any{ls.orgID, *ls.userID, day}, ls.orgID, *ls.userID, day.Format("2006-01-02")); err != nil {
				return fmt.Errorf("locking user_stats_daily: %w", err)
			}
		}
	}
	for _, sessionID := range ls.sessions {
		if err := lockKey(ctx, tx,
			`SELECT 1 FROM session_stats WHERE org_id = $1 AND session_id = $2 FOR UPDATE`,
			"session_stats", []any{ls.orgID, sessionID}, ls.orgID, sessionID); err != nil {
			return fmt.Errorf("locking session_stats: %w", err)
		}
	}
	for _, runID := range ls.runs {
		if err := lockKey(ctx, tx,
			`SELECT 1 FROM run_facts WHERE org_id = $1 AND run_id = $2 FOR UPDATE`,
			"run_facts", []any{ls.orgID, runID}, ls.orgID, runID); err != nil {
			return fmt.Errorf("locking run_facts: %w", err)
		}
	}
	return nil
}

// lockKey takes the advisory lock for one aggregate key, then row-locks the
// backing row if it already exists. The advisory lock is held to transaction
// end, so two groups creating the same row serialise even before it exists.
func lockKey(ctx context.Context, tx pgx.Tx, rowLockSQL, table string, args []any, identity ...string) error {
	_, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		lockIdentity(table, identity...))
	if err != nil {
		return err
	}

	rows, err := tx.Query(ctx, rowLockSQL, args...)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

// lockIdentity builds the stable string hashed into the advisory lock key.
// The unit separator keeps composite keys unambiguous.
func lockIdentity(table string, parts ...string) string {
	return table + "\x1f" + strings.Join(parts, "\x1f")
}
