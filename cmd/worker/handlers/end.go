package handlers

import (
	"context"

	"github.com/lyzr/agentflow/common/models"
)

// EndHandler terminates a path. The engine observes the node type and
// marks the run completed.
type EndHandler struct{}

func NewEndHandler() *EndHandler { return &EndHandler{} }

func (h *EndHandler) Type() models.NodeType { return models.NodeEnd }

func (h *EndHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	return &Result{
		Output: hctx.Input,
	}, nil
}
