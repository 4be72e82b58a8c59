package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/common/models"
)

const guardrailSystemPrompt = `You are a guardrail evaluator. Judge whether the given input satisfies the policy.
Respond with ONLY a JSON object of the form:
{"guardrail_result": "pass" or "fail", "reason": "<one sentence>"}`

// GuardrailsHandler asks an LLM to judge the accumulated context
// against a policy and routes to the "pass" or "fail" branch.
type GuardrailsHandler struct {
	client llm.Client
	model  string
}

func NewGuardrailsHandler(client llm.Client, defaultModel string) *GuardrailsHandler {
	return &GuardrailsHandler{client: client, model: defaultModel}
}

func (h *GuardrailsHandler) Type() models.NodeType { return models.NodeGuardrails }

func (h *GuardrailsHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	policy, err := configString(hctx, node.Config, "guardrail", true)
	if err != nil {
		return nil, err
	}

	inputJSON, err := json.Marshal(hctx.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal guardrail input: %w", err)
	}

	model, err := configString(hctx, node.Config, "llm_model", false)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = h.model
	}

	resp, err := h.client.Complete(ctx, &llm.Request{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: guardrailSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Policy:\n%s\n\nInput:\n%s", policy, string(inputJSON))},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	verdict, err := llm.ParseJSONObject(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("guardrail verdict is not valid JSON: %w", err)
	}

	result, _ := verdict["guardrail_result"].(string)
	pass := strings.EqualFold(strings.TrimSpace(result), "pass")
	reason, _ := verdict["reason"].(string)

	outcome := "fail"
	if pass {
		outcome = "pass"
	}

	return &Result{
		Output: merge(hctx.Input, map[string]any{
			"guardrail_pass":   pass,
			"guardrail_reason": reason,
		}),
		Next: hctx.Graph.NextNodes(node.ID, outcome),
	}, nil
}
