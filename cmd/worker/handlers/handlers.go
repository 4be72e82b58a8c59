package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/agentflow/cmd/worker/resolver"
	"github.com/lyzr/agentflow/common/graph"
	"github.com/lyzr/agentflow/common/models"
)

// Context carries everything a handler needs for one node execution
type Context struct {
	WorkflowID uuid.UUID
	RunID      uuid.UUID
	NodeID     string

	// Input is the accumulated context: the output of the node that
	// enqueued this job, or the run's initial input for the start node
	Input map[string]any

	Graph    *graph.Graph
	Resolver *resolver.Resolver
}

// Suspend signals that the run must pause for an external decision
type Suspend struct {
	Message string
}

// Result is what a handler returns on a normal (non-suspend) exit
type Result struct {
	// Output is the full accumulated context to flow downstream
	Output map[string]any

	// Next lists the node ids to enqueue
	Next []string

	// ToolCalls is an optional transcript recorded on the ledger row
	ToolCalls any

	// Suspend, when set, overrides everything else: no successors are
	// enqueued and the run waits for approval
	Suspend *Suspend
}

// Handler executes one node type
type Handler interface {
	Type() models.NodeType
	Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error)
}

// Registry dispatches nodes to their handlers
type Registry struct {
	handlers map[models.NodeType]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.NodeType]Handler)}
}

// Register adds a handler for its node type
func (r *Registry) Register(h Handler) {
	r.handlers[h.Type()] = h
}

// Execute dispatches a node to its handler. An unknown node type is a
// configuration error and fails the node.
func (r *Registry) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	h, ok := r.handlers[node.Type]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", node.Type)
	}
	return h.Execute(ctx, node, hctx)
}

// merge builds a handler's output: the input context plus the fields
// the handler produced, shallow, last writer wins. Downstream nodes
// see every field any upstream node has produced.
func merge(input, produced map[string]any) map[string]any {
	out := make(map[string]any, len(input)+len(produced))
	for k, v := range input {
		out[k] = v
	}
	for k, v := range produced {
		out[k] = v
	}
	return out
}

// configString extracts a string config field, resolving templates.
// Missing or wrongly typed fields yield a descriptive error so shape
// mismatches fail cleanly instead of panicking downstream.
func configString(hctx *Context, cfg map[string]any, key string, required bool) (string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("missing required config field %q", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("config field %q must be a string", key)
	}
	return hctx.Resolver.String(s), nil
}
