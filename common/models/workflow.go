package models

import (
	"time"

	"github.com/google/uuid"
)

// NodeType identifies the handler used to execute a node
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeEnd          NodeType = "end"
	NodeAgent        NodeType = "agent"
	NodeIfElse       NodeType = "if_else"
	NodeGuardrails   NodeType = "guardrails"
	NodeFork         NodeType = "fork"
	NodeUserApproval NodeType = "user_approval"
	NodeCognitive    NodeType = "cognitive"
)

// Workflow is an authored directed acyclic graph of typed nodes
// Maps to: workflows table
type Workflow struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Owner       string    `db:"owner" json:"owner"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	IsDeleted   bool      `db:"is_deleted" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Node is a single typed step in a workflow graph
// The config blob is opaque at the storage layer; handlers validate the
// expected fields for their node type at entry.
// Maps to: workflow_nodes table
type Node struct {
	// Stable within its workflow; the engine fetches nodes by
	// (workflow_id, node_id) at dequeue time
	ID         string         `db:"id" json:"id"`
	WorkflowID uuid.UUID      `db:"workflow_id" json:"workflow_id"`
	Type       NodeType       `db:"type" json:"type"`
	Config     map[string]any `db:"config" json:"config"`

	// Editor coordinates, opaque to the engine
	PosX float64 `db:"pos_x" json:"pos_x"`
	PosY float64 `db:"pos_y" json:"pos_y"`
}

// Edge connects two nodes. SourceHandle encodes branch labels:
// "true"/"false" for if_else, "pass"/"fail" for guardrails,
// "yes"/"no" for user_approval, arbitrary for fork. An empty
// SourceHandle means the default (any) branch.
// Maps to: workflow_edges table
type Edge struct {
	ID           string    `db:"id" json:"id"`
	WorkflowID   uuid.UUID `db:"workflow_id" json:"workflow_id"`
	Source       string    `db:"source_node" json:"source"`
	Target       string    `db:"target_node" json:"target"`
	SourceHandle string    `db:"source_handle" json:"source_handle,omitempty"`
	TargetHandle string    `db:"target_handle" json:"target_handle,omitempty"`
}
