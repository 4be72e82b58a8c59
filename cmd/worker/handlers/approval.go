package handlers

import (
	"context"
	"strings"

	"github.com/lyzr/agentflow/common/models"
)

// ApprovalHandler implements the two-phase approval gate. First entry
// (no decision in the input) suspends the run. Second entry, enqueued
// by the resume endpoint with approval_decision merged into the input,
// records the decision and routes to the "yes" or "no" branch.
type ApprovalHandler struct{}

func NewApprovalHandler() *ApprovalHandler { return &ApprovalHandler{} }

func (h *ApprovalHandler) Type() models.NodeType { return models.NodeUserApproval }

func (h *ApprovalHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	message, err := configString(hctx, node.Config, "message", false)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "Approval required"
	}

	raw, present := hctx.Input["approval_decision"]
	if !present {
		return &Result{
			Suspend: &Suspend{Message: message},
		}, nil
	}

	decision := normalizeDecision(raw)

	approvalMessage := message
	if m, ok := hctx.Input["approval_message"].(string); ok && m != "" {
		approvalMessage = m
	}

	return &Result{
		Output: merge(hctx.Input, map[string]any{
			"approval_decision": decision,
			"approval_message":  approvalMessage,
		}),
		Next: hctx.Graph.NextNodes(node.ID, decision),
	}, nil
}

// normalizeDecision maps the free-form decision value to "yes"/"no".
// Affirmatives are yes, approve, approved and true; everything else
// is no.
func normalizeDecision(raw any) string {
	switch strings.ToLower(strings.TrimSpace(stringForm(raw))) {
	case "yes", "approve", "approved", "true":
		return "yes"
	default:
		return "no"
	}
}
