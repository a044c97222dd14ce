package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eremenai/agentlytics/pkg/models"
)

// IngestRequest is the HTTP request body for POST /api/v1/events.
type IngestRequest struct {
	Events []IngestEvent `json:"events"`
}

// IngestEvent is the wire form of one telemetry event. occurred_at stays a
// string until validation so a malformed timestamp is reported per event
// instead of failing the whole bind.
type IngestEvent struct {
	EventID    string          `json:"event_id"`
	OrgID      string          `json:"org_id"`
	OccurredAt string          `json:"occurred_at"`
	EventType  string          `json:"event_type"`
	SessionID  string          `json:"session_id"`
	UserID     *string         `json:"user_id"`
	RunID      *string         `json:"run_id"`
	Payload    json.RawMessage `json:"payload"`
}

// ToModel parses the wire event into the domain event.
func (e IngestEvent) ToModel() (models.Event, error) {
	occurredAt, err := time.Parse(time.RFC3339, e.OccurredAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("occurred_at is not RFC3339: %v", err)
	}
	return models.Event{
		OrgID:      e.OrgID,
		EventID:    e.EventID,
		OccurredAt: occurredAt,
		EventType:  models.EventType(e.EventType),
		SessionID:  e.SessionID,
		UserID:     e.UserID,
		RunID:      e.RunID,
		Payload:    e.Payload,
	}, nil
}
