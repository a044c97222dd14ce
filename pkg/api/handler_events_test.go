package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eremenai/agentlytics/pkg/database"
	"github.com/eremenai/agentlytics/pkg/services"
	testdb "github.com/eremenai/agentlytics/test/database"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool := testdb.NewTestPool(t)
	dbClient := database.NewClientFromPool(pool)
	return NewServer(dbClient,
		services.NewIngestService(pool),
		services.NewStatsService(pool),
		nil)
}

func postEvents(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, IngestResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(rec, req)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func eventJSON(eventID string) string {
	return fmt.Sprintf(`{
		"event_id": %q, "org_id": "O", "occurred_at": "2024-01-15T10:00:00Z",
		"event_type": "message_created", "session_id": "S", "user_id": "U",
		"run_id": null, "payload": {}
	}`, eventID)
}

func TestIngestEndpoint(t *testing.T) {
	s := newTestServer(t)

	t.Run("accepts a valid batch", func(t *testing.T) {
		rec, resp := postEvents(t, s, `{"events":[`+eventJSON("e1")+`]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, resp.Accepted)
		assert.Equal(t, []string{"e1"}, resp.EventIDs)
		assert.Empty(t, resp.Errors)
	})

	t.Run("duplicate submission accepted again, single raw row", func(t *testing.T) {
		rec, resp := postEvents(t, s, `{"events":[`+eventJSON("e1")+`]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, resp.Accepted)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		rec, resp := postEvents(t, s, `{"events":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, resp.Accepted)
		require.Len(t, resp.Errors, 1)
	})

	t.Run("rejects oversized batch", func(t *testing.T) {
		events := make([]string, 101)
		for i := range events {
			events[i] = eventJSON(fmt.Sprintf("bulk-%d", i))
		}
		body := `{"events":[` + events[0]
		for _, e := range events[1:] {
			body += "," + e
		}
		body += `]}`

		rec, _ := postEvents(t, s, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("one invalid event rejects the whole batch", func(t *testing.T) {
		invalid := `{
			"event_id": "bad", "org_id": "O", "occurred_at": "2024-01-15T10:00:00Z",
			"event_type": "run_started", "session_id": "S", "user_id": "U",
			"run_id": null, "payload": {}
		}`
		rec, resp := postEvents(t, s, `{"events":[`+eventJSON("e9")+`,`+invalid+`]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, resp.Accepted)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, 1, resp.Errors[0].Index)
		assert.Contains(t, resp.Errors[0].Message, "run_id")

		// Nothing persisted, not even the valid sibling.
		rec2, resp2 := postEvents(t, s, `{"events":[`+eventJSON("e9")+`]}`)
		assert.Equal(t, http.StatusOK, rec2.Code)
		assert.Equal(t, 1, resp2.Accepted)
	})

	t.Run("reports malformed occurred_at per event", func(t *testing.T) {
		malformed := `{
			"event_id": "clock", "org_id": "O", "occurred_at": "yesterday",
			"event_type": "message_created", "session_id": "S", "user_id": null,
			"run_id": null, "payload": {}
		}`
		rec, resp := postEvents(t, s, `{"events":[`+malformed+`]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "clock", resp.Errors[0].EventID)
		assert.Contains(t, resp.Errors[0].Message, "RFC3339")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec, _ := postEvents(t, s, `{"events": "nope"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.Database)
}
