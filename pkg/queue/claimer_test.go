package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/eremenai/agentlytics/test/database"
)

func TestClaimerClaim(t *testing.T) {
	pool := testdb.NewTestPool(t)
	claimer := NewClaimer(pool)
	ctx := context.Background()

	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	seed(t, pool,
		seedEvent{org: "O", id: "e1", at: at, typ: "message_created", session: "S", user: strPtr("U")},
		seedEvent{org: "O", id: "e2", at: at.Add(5 * time.Second), typ: "run_started", session: "S", user: strPtr("U"), run: strPtr("R1")},
		seedEvent{org: "O", id: "e3", at: at.Add(35 * time.Second), typ: "run_completed", session: "S", user: strPtr("U"), run: strPtr("R1"),
			payload: `{"status":"success","duration_ms":30000,"cost":0.02,"input_tokens":1000,"output_tokens":500}`},
	)

	t.Run("claims oldest first and hydrates from events_raw", func(t *testing.T) {
		batch, err := claimer.Claim(ctx, 2)
		require.NoError(t, err)
		require.Len(t, batch, 2)

		assert.Equal(t, "e1", batch[0].EventID)
		assert.Equal(t, "e2", batch[1].EventID)
		assert.Equal(t, "message_created", string(batch[0].EventType))
		assert.Equal(t, "S", batch[0].SessionID)
		assert.Equal(t, "U", *batch[0].UserID)
		assert.False(t, batch[0].Missing)
		assert.Equal(t, "R1", *batch[1].RunID)
	})

	t.Run("increments attempts on every claim", func(t *testing.T) {
		_, attempts, _ := queueRow(t, pool, "O", "e1")
		assert.Equal(t, int32(1), attempts)

		// e1 and e2 are unprocessed so they are re-claimed, bumping attempts.
		batch, err := claimer.Claim(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, batch, 3)

		_, attempts, _ = queueRow(t, pool, "O", "e1")
		assert.Equal(t, int32(2), attempts)
	})

	t.Run("depth counts unprocessed entries", func(t *testing.T) {
		depth, err := claimer.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), depth)
	})
}

func TestClaimerSkipsLockedRows(t *testing.T) {
	pool := testdb.NewTestPool(t)
	claimer := NewClaimer(pool)
	ctx := context.Background()

	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	seed(t, pool,
		seedEvent{org: "O", id: "e1", at: at, typ: "message_created", session: "S1"},
		seedEvent{org: "O", id: "e2", at: at, typ: "message_created", session: "S2"},
	)

	// Hold locks on e1 in an open transaction to simulate a competing worker.
	competing, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = competing.Rollback(ctx) }()

	_, err = competing.Exec(ctx, `
		SELECT 1 FROM events_queue
		WHERE org_id = 'O' AND event_id = 'e1' FOR UPDATE`)
	require.NoError(t, err)

	// The claim must skip the locked row and return only e2.
	batch, err := claimer.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "e2", batch[0].EventID)
}

func TestClaimerHydratesMissingRawRow(t *testing.T) {
	pool := testdb.NewTestPool(t)
	claimer := NewClaimer(pool)

	seedOrphanQueueEntry(t, pool, "O", "ghost")

	batch, err := claimer.Claim(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.True(t, batch[0].Missing)
	assert.Equal(t, "ghost", batch[0].EventID)
}
