package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// seedEvent is a raw event row plus its queue entry, inserted directly so
// tests can also produce states ingest validation would reject.
type seedEvent struct {
	org     string
	id      string
	at      time.Time
	typ     string
	session string
	user    *string
	run     *string
	payload string
}

// seed inserts events with strictly increasing inserted_at so claim order is
// deterministic.
func seed(t *testing.T, pool *pgxpool.Pool, events ...seedEvent) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, ev := range events {
		payload := ev.payload
		if payload == "" {
			payload = "{}"
		}
		insertedAt := base.Add(time.Duration(i) * time.Millisecond)

		_, err := pool.Exec(ctx, `
			INSERT INTO events_raw (org_id, event_id, occurred_at, inserted_at, event_type, session_id, user_id, run_id, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ev.org, ev.id, ev.at, insertedAt, ev.typ, ev.session, ev.user, ev.run, []byte(payload))
		require.NoError(t, err)

		_, err = pool.Exec(ctx, `
			INSERT INTO events_queue (org_id, event_id, inserted_at)
			VALUES ($1, $2, $3)`,
			ev.org, ev.id, insertedAt)
		require.NoError(t, err)
	}
}

// seedOrphanQueueEntry inserts a queue row with no events_raw counterpart.
func seedOrphanQueueEntry(t *testing.T, pool *pgxpool.Pool, org, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO events_queue (org_id, event_id) VALUES ($1, $2)`, org, id)
	require.NoError(t, err)
}

func queueRow(t *testing.T, pool *pgxpool.Pool, org, id string) (processedAt *time.Time, attempts int32, lastError *string) {
	t.Helper()
	err := pool.QueryRow(context.Background(), `
		SELECT processed_at, attempts, last_error
		FROM events_queue WHERE org_id = $1 AND event_id = $2`,
		org, id).Scan(&processedAt, &attempts, &lastError)
	require.NoError(t, err)
	return processedAt, attempts, lastError
}

func eventID(prefix string, i int) string {
	return fmt.Sprintf("%s-%03d", prefix, i)
}
