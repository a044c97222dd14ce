package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eremenai/agentlytics/pkg/database"
	"github.com/eremenai/agentlytics/pkg/queue"
	"github.com/eremenai/agentlytics/pkg/services"
	testdb "github.com/eremenai/agentlytics/test/database"
)

// Duplicate ingest end to end: both submissions accepted, one raw row, the
// worker processes one event, and the read models reflect one session with
// one message.
func TestDuplicateIngestEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	pool := testdb.NewTestPool(t)
	dbClient := database.NewClientFromPool(pool)
	s := NewServer(dbClient,
		services.NewIngestService(pool),
		services.NewStatsService(pool),
		nil)

	for i := 0; i < 2; i++ {
		rec, resp := postEvents(t, s, `{"events":[`+eventJSON("dup-1")+`]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, resp.Accepted)
	}

	var rawRows, queueRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM events_raw`).Scan(&rawRows))
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM events_queue`).Scan(&queueRows))
	assert.Equal(t, 1, rawRows)
	assert.Equal(t, 1, queueRows)

	// Drain the queue the way the worker loop would.
	claimer := queue.NewClaimer(pool)
	dispatcher := queue.NewDispatcher(pool)
	batch, err := claimer.Claim(ctx, 100)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	res := dispatcher.Process(ctx, batch)
	assert.Equal(t, 1, res.Processed)

	// Read side: one session, counted once.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs/O/sessions/S/stats", nil)
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(0), stats["runs_count"])
	assert.NotNil(t, stats["first_message_at"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orgs/O/stats/daily?from=2024-01-15&to=2024-01-15", nil)
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var daily struct {
		Days []struct {
			SessionsCount int64 `json:"sessions_count"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &daily))
	require.Len(t, daily.Days, 1)
	assert.Equal(t, int64(1), daily.Days[0].SessionsCount)
}
