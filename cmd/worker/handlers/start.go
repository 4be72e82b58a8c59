package handlers

import (
	"context"

	"github.com/lyzr/agentflow/common/models"
)

// StartHandler passes the run's initial input through unchanged
type StartHandler struct{}

func NewStartHandler() *StartHandler { return &StartHandler{} }

func (h *StartHandler) Type() models.NodeType { return models.NodeStart }

func (h *StartHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	return &Result{
		Output: hctx.Input,
		Next:   hctx.Graph.NextNodes(node.ID, ""),
	}, nil
}
