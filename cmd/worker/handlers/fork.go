package handlers

import (
	"context"

	"github.com/lyzr/agentflow/common/models"
)

// ForkHandler fans execution out: every outgoing edge gets its own
// job carrying the same accumulated context. Branches execute
// independently and are never joined or cancelled.
type ForkHandler struct{}

func NewForkHandler() *ForkHandler { return &ForkHandler{} }

func (h *ForkHandler) Type() models.NodeType { return models.NodeFork }

func (h *ForkHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	branches := hctx.Graph.NextNodes(node.ID, "")

	return &Result{
		Output: merge(hctx.Input, map[string]any{
			"branches":     branches,
			"branch_count": len(branches),
		}),
		Next: branches,
	}, nil
}
