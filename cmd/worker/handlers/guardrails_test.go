package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/common/models"
)

func guardrailsGraph(cfg map[string]any) (*models.Node, *Context) {
	gr := testNode("guard", models.NodeGuardrails, cfg)
	g := testGraph(
		[]*models.Node{gr, testNode("ok", models.NodeEnd, nil), testNode("blocked", models.NodeEnd, nil)},
		[]models.Edge{
			testEdge("1", "guard", "ok", "pass"),
			testEdge("2", "guard", "blocked", "fail"),
		},
	)
	return gr, testContext(g, "guard", map[string]any{"text": "hello"})
}

func TestGuardrailsPass(t *testing.T) {
	gr, hctx := guardrailsGraph(map[string]any{"guardrail": "no profanity"})
	client := &stubLLM{responses: []*llm.Response{
		{Content: `{"guardrail_result": "pass", "reason": "clean"}`},
	}}

	res, err := NewGuardrailsHandler(client, "gpt-4o-mini").Execute(context.Background(), gr, hctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, res.Next)
	assert.Equal(t, true, res.Output["guardrail_pass"])
	assert.Equal(t, "clean", res.Output["guardrail_reason"])
	assert.Equal(t, "hello", res.Output["text"])
}

func TestGuardrailsFail(t *testing.T) {
	gr, hctx := guardrailsGraph(map[string]any{"guardrail": "no profanity"})
	client := &stubLLM{responses: []*llm.Response{
		{Content: `{"guardrail_result": "FAIL", "reason": "rude"}`},
	}}

	res, err := NewGuardrailsHandler(client, "gpt-4o-mini").Execute(context.Background(), gr, hctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"blocked"}, res.Next)
	assert.Equal(t, false, res.Output["guardrail_pass"])
	assert.Equal(t, "rude", res.Output["guardrail_reason"])
}

func TestGuardrailsVerdictCaseInsensitive(t *testing.T) {
	gr, hctx := guardrailsGraph(map[string]any{"guardrail": "any"})
	client := &stubLLM{responses: []*llm.Response{
		{Content: `{"guardrail_result": "Pass", "reason": ""}`},
	}}

	res, err := NewGuardrailsHandler(client, "m").Execute(context.Background(), gr, hctx)
	require.NoError(t, err)
	assert.Equal(t, true, res.Output["guardrail_pass"])
}

func TestGuardrailsUnparseableVerdict(t *testing.T) {
	gr, hctx := guardrailsGraph(map[string]any{"guardrail": "any"})
	client := &stubLLM{responses: []*llm.Response{{Content: "I refuse to answer"}}}

	_, err := NewGuardrailsHandler(client, "m").Execute(context.Background(), gr, hctx)
	assert.Error(t, err)
}

func TestGuardrailsMissingPolicy(t *testing.T) {
	gr, hctx := guardrailsGraph(map[string]any{})

	_, err := NewGuardrailsHandler(&stubLLM{}, "m").Execute(context.Background(), gr, hctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guardrail")
}

func TestGuardrailsModelOverride(t *testing.T) {
	gr, hctx := guardrailsGraph(map[string]any{"guardrail": "any", "llm_model": "gpt-4o"})
	client := &stubLLM{responses: []*llm.Response{
		{Content: `{"guardrail_result": "pass", "reason": "ok"}`},
	}}

	_, err := NewGuardrailsHandler(client, "default-model").Execute(context.Background(), gr, hctx)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "gpt-4o", client.requests[0].Model)
	assert.True(t, client.requests[0].JSONMode)
}
