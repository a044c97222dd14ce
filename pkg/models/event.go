// Package models defines the telemetry event types, their payloads, and the
// read-model rows maintained by the projection worker.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventType identifies the semantic kind of a telemetry event.
type EventType string

// Supported event types.
const (
	EventTypeMessageCreated EventType = "message_created"
	EventTypeRunStarted     EventType = "run_started"
	EventTypeRunCompleted   EventType = "run_completed"
	EventTypeLocalHandoff   EventType = "local_handoff"
)

// Known returns true for event types this pipeline projects. Ingest rejects
// unknown types; a queue row of an unknown type that still reaches the worker
// is skipped and marked processed (forward compatibility).
func (t EventType) Known() bool {
	switch t {
	case EventTypeMessageCreated, EventTypeRunStarted, EventTypeRunCompleted, EventTypeLocalHandoff:
		return true
	}
	return false
}

// RequiresRunID reports whether events of this type must carry a run_id.
func (t EventType) RequiresRunID() bool {
	return t == EventTypeRunStarted || t == EventTypeRunCompleted
}

// RunStatus is the terminal status of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusSuccess   RunStatus = "success"
	RunStatusFail      RunStatus = "fail"
	RunStatusTimeout   RunStatus = "timeout"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) valid() bool {
	switch s {
	case RunStatusSuccess, RunStatusFail, RunStatusTimeout, RunStatusCancelled:
		return true
	}
	return false
}

// ErrorType categorises a non-success run.
type ErrorType string

// Error types. Absence on a non-success run is treated as unknown.
const (
	ErrorTypeTool    ErrorType = "tool_error"
	ErrorTypeModel   ErrorType = "model_error"
	ErrorTypeTimeout ErrorType = "timeout"
	ErrorTypeUnknown ErrorType = "unknown"
)

func (e ErrorType) valid() bool {
	switch e {
	case ErrorTypeTool, ErrorTypeModel, ErrorTypeTimeout, ErrorTypeUnknown:
		return true
	}
	return false
}

// HandoffMethod is how session context left the platform.
type HandoffMethod string

// Handoff methods.
const (
	HandoffMethodTeleport  HandoffMethod = "teleport"
	HandoffMethodDownload  HandoffMethod = "download"
	HandoffMethodCopyPatch HandoffMethod = "copy_patch"
	HandoffMethodOther     HandoffMethod = "other"
)

func (m HandoffMethod) valid() bool {
	switch m {
	case HandoffMethodTeleport, HandoffMethodDownload, HandoffMethodCopyPatch, HandoffMethodOther:
		return true
	}
	return false
}

// Decimal is a fixed-point decimal carried in its textual form so monetary
// values never pass through binary floats; arithmetic on them happens in
// PostgreSQL NUMERIC. Accepts both JSON numbers and JSON strings.
type Decimal string

// UnmarshalJSON accepts 0.02, "0.02", and null.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Decimal(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = Decimal(n.String())
	return nil
}

func (d Decimal) String() string { return string(d) }

// Event is a single telemetry record. Payload stays opaque JSON in the
// database; inside the process it is decoded into the typed payload structs
// below, keyed on EventType.
type Event struct {
	OrgID      string          `json:"org_id"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	EventType  EventType       `json:"event_type"`
	SessionID  string          `json:"session_id"`
	UserID     *string         `json:"user_id"`
	RunID      *string         `json:"run_id"`
	Payload    json.RawMessage `json:"payload"`
}

// RunCompletedPayload is the payload of a run_completed event.
type RunCompletedPayload struct {
	Status       RunStatus `json:"status"`
	DurationMS   int64     `json:"duration_ms"`
	Cost         Decimal   `json:"cost"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	ErrorType    ErrorType `json:"error_type,omitempty"`
}

// EffectiveErrorType routes a non-success run into an error bucket.
// tool_error, model_error and timeout map to their own buckets; everything
// else (including absence) counts as unknown.
func (p RunCompletedPayload) EffectiveErrorType() ErrorType {
	switch p.ErrorType {
	case ErrorTypeTool, ErrorTypeModel, ErrorTypeTimeout:
		return p.ErrorType
	default:
		return ErrorTypeUnknown
	}
}

// LocalHandoffPayload is the payload of a local_handoff event.
type LocalHandoffPayload struct {
	Method HandoffMethod `json:"method"`
}

// DecodeRunCompleted decodes and re-validates a run_completed payload.
func (e *Event) DecodeRunCompleted() (RunCompletedPayload, error) {
	var p RunCompletedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding run_completed payload: %w", err)
	}
	if err := validateRunCompleted(p); err != nil {
		return p, err
	}
	return p, nil
}

// DecodeLocalHandoff decodes and re-validates a local_handoff payload.
func (e *Event) DecodeLocalHandoff() (LocalHandoffPayload, error) {
	var p LocalHandoffPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding local_handoff payload: %w", err)
	}
	if !p.Method.valid() {
		return p, fmt.Errorf("invalid handoff method %q", p.Method)
	}
	return p, nil
}

// Validate checks the event against the ingest contract: non-empty
// identifiers, run_id where required, and a payload conforming to the
// per-type shape. Returns a message suitable for the ingest errors array.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	if !e.EventType.Known() {
		return fmt.Errorf("unknown event_type %q", e.EventType)
	}
	if e.EventType.RequiresRunID() && (e.RunID == nil || *e.RunID == "") {
		return fmt.Errorf("run_id is required for %s events", e.EventType)
	}
	if e.UserID != nil && *e.UserID == "" {
		return fmt.Errorf("user_id must be null or non-empty")
	}

	switch e.EventType {
	case EventTypeRunCompleted:
		if _, err := e.DecodeRunCompleted(); err != nil {
			return err
		}
	case EventTypeLocalHandoff:
		if _, err := e.DecodeLocalHandoff(); err != nil {
			return err
		}
	}
	return nil
}

func validateRunCompleted(p RunCompletedPayload) error {
	if !p.Status.valid() {
		return fmt.Errorf("invalid run status %q", p.Status)
	}
	if p.DurationMS < 0 {
		return fmt.Errorf("duration_ms must be non-negative")
	}
	if p.InputTokens < 0 || p.OutputTokens < 0 {
		return fmt.Errorf("token counts must be non-negative")
	}
	if p.Cost != "" {
		if _, err := strconv.ParseFloat(p.Cost.String(), 64); err != nil {
			return fmt.Errorf("cost is not a valid decimal: %w", err)
		}
	}
	if p.ErrorType != "" && !p.ErrorType.valid() {
		return fmt.Errorf("invalid error_type %q", p.ErrorType)
	}
	return nil
}

// CostOrZero returns the payload cost as a decimal string, defaulting to "0"
// when absent so it can be passed straight into a NUMERIC parameter.
func (p RunCompletedPayload) CostOrZero() string {
	if p.Cost == "" {
		return "0"
	}
	return p.Cost.String()
}
