package events

import (
	"time"
)

// Event types emitted over the run event channel
const (
	TypeConnected      = "connected"
	TypeRunStarted     = "run_started"
	TypeNodeStarted    = "node_started"
	TypeNodeCompleted  = "node_completed"
	TypeNodeError      = "node_error"
	TypeApprovalNeeded = "approval_needed"
	TypeRunCompleted   = "run_completed"
	TypeRunFailed      = "run_failed"
)

// Event is the envelope published on a workflow's event channel and
// relayed verbatim to WebSocket subscribers. Fields are omitted when
// empty so each event type carries only its own payload.
type Event struct {
	EventType  string `json:"event_type"`
	RunID      string `json:"run_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	NodeType   string `json:"node_type,omitempty"`

	InitialInput map[string]any `json:"initial_input,omitempty"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	FinalOutput  map[string]any `json:"final_output,omitempty"`

	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS *int64 `json:"duration_ms,omitempty"`
	Timestamp  string `json:"timestamp"`
	Sequence   *int64 `json:"sequence,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Now returns the timestamp format used on all events
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
