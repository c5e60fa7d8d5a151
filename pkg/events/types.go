// Package events carries the observational event stream the server exposes
// for polling. Events are purely informational; no component reads them to
// make decisions.
package events

import "time"

// EventType identifies what happened during a turn or upload.
type EventType string

const (
	SessionStarted      EventType = "session_started"
	TurnStarted         EventType = "turn_started"
	ToolCallStarted     EventType = "tool_call_started"
	ToolCallCompleted   EventType = "tool_call_completed"
	MemoryUpdated       EventType = "memory_updated"
	UploadReceived      EventType = "upload_received"
	ConversionCompleted EventType = "conversion_completed"
	ConversionFailed    EventType = "conversion_failed"
	TurnCompleted       EventType = "turn_completed"
	TurnFailed          EventType = "turn_failed"
)

// Event is one entry in a session's stream. Seq is monotonic per session so
// clients can poll with ?after=<seq>.
type Event struct {
	Seq          int64                  `json:"seq"`
	Type         EventType              `json:"type"`
	SessionID    string                 `json:"session_id"`
	ExperimentID string                 `json:"experiment_id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Data         map[string]interface{} `json:"data,omitempty"`
}
