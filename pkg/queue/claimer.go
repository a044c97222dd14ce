package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eremenai/agentlytics/pkg/models"
)

// claimSQL claims and hydrates in one round-trip: the CTE takes skip-locked
// row locks on the oldest unprocessed queue entries, the UPDATE persists the
// attempts increment, and the outer join pulls the raw event columns. The
// LEFT JOIN keeps queue rows whose raw event is missing so they surface as
// permanent errors instead of disappearing.
const claimSQL = `
WITH claimed AS (
	SELECT org_id, event_id
	FROM events_queue
	WHERE processed_at IS NULL
	ORDER BY inserted_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
),
bumped AS (
	UPDATE events_queue q
	SET attempts = q.attempts + 1
	FROM claimed c
	WHERE q.org_id = c.org_id AND q.event_id = c.event_id
	RETURNING q.org_id, q.event_id, q.inserted_at, q.attempts
)
SELECT b.org_id, b.event_id, b.inserted_at, b.attempts,
       r.occurred_at, r.event_type, r.session_id, r.user_id, r.run_id, r.payload
FROM bumped b
LEFT JOIN events_raw r ON r.org_id = b.org_id AND r.event_id = b.event_id
ORDER BY b.inserted_at, b.event_id`

// Claimer atomically claims bounded batches of unprocessed queue entries.
type Claimer struct {
	pool *pgxpool.Pool
}

// NewClaimer creates a claimer over the shared pool.
func NewClaimer(pool *pgxpool.Pool) *Claimer {
	return &Claimer{pool: pool}
}

// Claim returns at most batchSize queue entries, oldest first, skipping rows
// locked by other workers. The claim transaction commits immediately so the
// row locks are released before group processing re-locks per aggregate.
func (c *Claimer) Claim(ctx context.Context, batchSize int) ([]*ClaimedEvent, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, claimSQL, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim events: %w", err)
	}

	batch, err := scanClaimed(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return batch, nil
}

func scanClaimed(rows pgx.Rows) ([]*ClaimedEvent, error) {
	defer rows.Close()

	var batch []*ClaimedEvent
	for rows.Next() {
		var (
			ev         ClaimedEvent
			occurredAt *time.Time
			eventType  *string
			sessionID  *string
			payload    []byte
		)
		if err := rows.Scan(
			&ev.OrgID, &ev.EventID, &ev.InsertedAt, &ev.Attempts,
			&occurredAt, &eventType, &sessionID, &ev.UserID, &ev.RunID, &payload,
		); err != nil {
			return nil, fmt.Errorf("failed to scan claimed event: %w", err)
		}

		if eventType == nil {
			// Queue entry with no events_raw row.
			ev.Missing = true
		} else {
			ev.OccurredAt = *occurredAt
			ev.EventType = models.EventType(*eventType)
			ev.SessionID = *sessionID
			ev.Payload = json.RawMessage(payload)
		}
		batch = append(batch, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed events: %w", err)
	}
	return batch, nil
}

// Depth counts unprocessed queue entries, for operator logs and health.
func (c *Claimer) Depth(ctx context.Context) (int64, error) {
	var depth int64
	err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM events_queue WHERE processed_at IS NULL`,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue depth: %w", err)
	}
	return depth, nil
}
