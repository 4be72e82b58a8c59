package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/cmd/worker/resolver"
	"github.com/lyzr/agentflow/common/graph"
	"github.com/lyzr/agentflow/common/models"
)

const cognitiveSystemPrompt = `You are a workflow planner. Given an instruction and an input document,
design a workflow that accomplishes the instruction.

Respond with ONLY a JSON object of this shape:
{
  "reasoning": "<why this workflow>",
  "nodes": [{"id": "<unique id>", "type": "start|end|agent|if_else|guardrails|fork|user_approval", "config": {...}}],
  "edges": [{"source": "<node id>", "target": "<node id>", "source_handle": ""}]
}

Rules: exactly one start node, at least one end node, no cycles, at
most 20 nodes, never use a cognitive node. Node configs follow the
standard schema for their type (agent: llm_model/system_prompt/
user_prompt, if_else: lhs/condition/rhs, and so on).`

// maxVirtualSteps bounds the inline traversal; converging edges can
// make a node execute once per arriving path
const maxVirtualSteps = 50

// CognitiveHandler asks an LLM to synthesize a virtual workflow and
// executes it inline. The whole traversal is one ledger entry; the
// generated graph and every virtual step land in its tool_calls field.
type CognitiveHandler struct {
	client   llm.Client
	registry *Registry
	model    string
}

func NewCognitiveHandler(client llm.Client, registry *Registry, defaultModel string) *CognitiveHandler {
	return &CognitiveHandler{client: client, registry: registry, model: defaultModel}
}

func (h *CognitiveHandler) Type() models.NodeType { return models.NodeCognitive }

func (h *CognitiveHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	instruction, err := configString(hctx, node.Config, "cognitive_instruction", true)
	if err != nil {
		return nil, err
	}

	model, err := configString(hctx, node.Config, "llm_model", false)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = h.model
	}

	inputJSON, err := json.Marshal(hctx.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal cognitive input: %w", err)
	}

	resp, err := h.client.Complete(ctx, &llm.Request{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cognitiveSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Instruction:\n%s\n\nInput:\n%s", instruction, string(inputJSON))},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	plan, err := llm.ParseJSONObject(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("generated workflow is not valid JSON: %w", err)
	}

	virtual, err := buildVirtualGraph(plan)
	if err != nil {
		return nil, err
	}
	if err := virtual.ValidateVirtual(); err != nil {
		return nil, err
	}

	finalOutput, steps, err := h.runVirtual(ctx, virtual, hctx)
	if err != nil {
		return nil, err
	}

	reasoning, _ := plan["reasoning"].(string)

	return &Result{
		Output: merge(hctx.Input, map[string]any{
			"cognitive_output":    finalOutput,
			"cognitive_reasoning": reasoning,
		}),
		Next: hctx.Graph.NextNodes(node.ID, ""),
		ToolCalls: map[string]any{
			"generated_workflow": plan,
			"steps":              steps,
		},
	}, nil
}

// runVirtual walks the virtual graph from its start node, dispatching
// each node through the shared registry against an in-memory context.
// The first end node reached supplies the cognitive output.
func (h *CognitiveHandler) runVirtual(ctx context.Context, virtual *graph.Graph, outer *Context) (map[string]any, []map[string]any, error) {
	start, err := virtual.StartNode()
	if err != nil {
		return nil, nil, err
	}

	type frame struct {
		nodeID string
		input  map[string]any
	}

	queue := []frame{{nodeID: start.ID, input: outer.Input}}
	var steps []map[string]any
	var finalOutput map[string]any

	for len(queue) > 0 {
		if len(steps) >= maxVirtualSteps {
			return nil, nil, fmt.Errorf("virtual workflow exceeded %d steps", maxVirtualSteps)
		}

		f := queue[0]
		queue = queue[1:]

		vnode := virtual.Node(f.nodeID)
		if vnode == nil {
			return nil, nil, fmt.Errorf("virtual workflow references missing node %s", f.nodeID)
		}

		res, err := h.executeVirtualNode(ctx, virtual, vnode, f.input, outer)
		if err != nil {
			return nil, nil, fmt.Errorf("virtual node %s: %w", f.nodeID, err)
		}
		if res.Suspend != nil {
			return nil, nil, fmt.Errorf("virtual node %s: approval gates cannot suspend inside a cognitive node", f.nodeID)
		}

		steps = append(steps, map[string]any{
			"node_id":   vnode.ID,
			"node_type": string(vnode.Type),
			"output":    res.Output,
		})

		if vnode.Type == models.NodeEnd {
			if finalOutput == nil {
				finalOutput = res.Output
			}
			continue
		}

		for _, next := range res.Next {
			queue = append(queue, frame{nodeID: next, input: res.Output})
		}
	}

	if finalOutput == nil {
		return nil, nil, fmt.Errorf("virtual workflow finished without reaching an end node")
	}

	return finalOutput, steps, nil
}

func (h *CognitiveHandler) executeVirtualNode(ctx context.Context, virtual *graph.Graph, vnode *models.Node, input map[string]any, outer *Context) (*Result, error) {
	r, err := resolver.New(input)
	if err != nil {
		return nil, err
	}

	return h.registry.Execute(ctx, vnode, &Context{
		WorkflowID: outer.WorkflowID,
		RunID:      outer.RunID,
		NodeID:     vnode.ID,
		Input:      input,
		Graph:      virtual,
		Resolver:   r,
	})
}

// buildVirtualGraph converts the model's JSON plan into a graph
func buildVirtualGraph(plan map[string]any) (*graph.Graph, error) {
	rawNodes, ok := plan["nodes"].([]any)
	if !ok {
		return nil, fmt.Errorf("generated workflow has no nodes array")
	}

	var nodes []*models.Node
	for _, rn := range rawNodes {
		nm, ok := rn.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("generated node is not an object")
		}
		id, _ := nm["id"].(string)
		typ, _ := nm["type"].(string)
		if id == "" || typ == "" {
			return nil, fmt.Errorf("generated node missing id or type")
		}
		cfg, _ := nm["config"].(map[string]any)
		nodes = append(nodes, &models.Node{
			ID:     id,
			Type:   models.NodeType(typ),
			Config: cfg,
		})
	}

	var edges []models.Edge
	if rawEdges, ok := plan["edges"].([]any); ok {
		for i, re := range rawEdges {
			em, ok := re.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("generated edge is not an object")
			}
			source, _ := em["source"].(string)
			target, _ := em["target"].(string)
			handle, _ := em["source_handle"].(string)
			if source == "" || target == "" {
				return nil, fmt.Errorf("generated edge missing source or target")
			}
			edges = append(edges, models.Edge{
				ID:           fmt.Sprintf("ve-%d", i),
				Source:       source,
				Target:       target,
				SourceHandle: handle,
			})
		}
	}

	return graph.New(nodes, edges), nil
}
