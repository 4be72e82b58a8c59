package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a workflow run.
// Transitions are monotonic except awaiting_approval -> running on
// resume; failed is sticky (a failed branch of a fork marks the whole
// run failed even if a sibling already completed).
type RunStatus string

const (
	RunRunning          RunStatus = "running"
	RunAwaitingApproval RunStatus = "awaiting_approval"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
)

// Run is one execution of a workflow against a specific initial input
// Maps to: runs table
type Run struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	WorkflowID   uuid.UUID      `db:"workflow_id" json:"workflow_id"`
	Status       RunStatus      `db:"status" json:"status"`
	InitialInput map[string]any `db:"initial_input" json:"initial_input"`
	StartedAt    time.Time      `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a terminal status
func (r *Run) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// LedgerEntry is one row in the append-only execution ledger.
// A row is created when a node starts (output nil, finished_at nil) and
// mutated exactly once when it finishes; on broker redelivery a new row
// is created for the new attempt, never mutated in place.
// Maps to: ledger table, indexed by (run_id, sequence)
type LedgerEntry struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	RunID     uuid.UUID      `db:"run_id" json:"run_id"`
	NodeID    string         `db:"node_id" json:"node_id"`
	NodeType  NodeType       `db:"node_type" json:"node_type"`
	Sequence  int64          `db:"sequence" json:"sequence"`
	Input     map[string]any `db:"input" json:"input"`
	Output    map[string]any `db:"output" json:"output,omitempty"`
	ToolCalls any            `db:"tool_calls" json:"tool_calls,omitempty"`

	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	DurationMS *int64     `db:"duration_ms" json:"duration_ms,omitempty"`
	Error      *string    `db:"error" json:"error,omitempty"`
}

// ApprovalRequest exists only while a run is suspended at a
// user_approval node; the resume entry point deletes it, which is what
// makes a second resume fail.
// Maps to: approvals table (run_id PK)
type ApprovalRequest struct {
	RunID        uuid.UUID      `db:"run_id" json:"run_id"`
	NodeID       string         `db:"node_id" json:"node_id"`
	Message      string         `db:"message" json:"message"`
	PendingInput map[string]any `db:"pending_input" json:"pending_input"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
