package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/cmd/worker/tools"
	"github.com/lyzr/agentflow/common/models"
)

// ErrToolCallLimit is returned when an agent node exceeds its budget
// of LLM<->tool round trips
var ErrToolCallLimit = errors.New("tool_call_limit_exceeded")

// ToolSource loads tool definitions referenced by an agent's config
type ToolSource interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Tool, error)
}

// AgentHandler runs an LLM conversation, executing requested tool
// calls until the model produces a final text answer or the iteration
// budget runs out.
type AgentHandler struct {
	client        llm.Client
	toolSource    ToolSource
	executor      tools.Executor
	defaultModel  string
	maxIterations int
}

func NewAgentHandler(client llm.Client, toolSource ToolSource, executor tools.Executor, defaultModel string, maxIterations int) *AgentHandler {
	return &AgentHandler{
		client:        client,
		toolSource:    toolSource,
		executor:      executor,
		defaultModel:  defaultModel,
		maxIterations: maxIterations,
	}
}

func (h *AgentHandler) Type() models.NodeType { return models.NodeAgent }

func (h *AgentHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	systemPrompt, err := configString(hctx, node.Config, "system_prompt", false)
	if err != nil {
		return nil, err
	}
	userPrompt, err := configString(hctx, node.Config, "user_prompt", true)
	if err != nil {
		return nil, err
	}
	model, err := configString(hctx, node.Config, "llm_model", false)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = h.defaultModel
	}

	structured, _ := node.Config["structured_output"].(bool)
	if structured {
		schema, _ := json.Marshal(node.Config["structured_output_schema"])
		systemPrompt += fmt.Sprintf("\n\nRespond with ONLY a JSON object conforming to this schema:\n%s", string(schema))
	}

	agentTools, err := h.loadTools(ctx, node.Config)
	if err != nil {
		return nil, err
	}
	defs := tools.Definitions(agentTools)

	byName := make(map[string]*models.Tool, len(agentTools))
	for _, t := range agentTools {
		byName[t.Name] = t
	}

	messages := []openai.ChatCompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	var transcript []map[string]any
	var final string

	for iteration := 0; ; iteration++ {
		if iteration >= h.maxIterations {
			return nil, ErrToolCallLimit
		}

		resp, err := h.client.Complete(ctx, &llm.Request{
			Model:    model,
			Messages: messages,
			Tools:    defs,
			JSONMode: structured && len(defs) == 0,
		})
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			resultText, record := h.invoke(ctx, byName, call)
			transcript = append(transcript, record)

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    resultText,
			})
		}
	}

	produced := map[string]any{
		"message":    final,
		"tool_calls": transcript,
	}

	if structured {
		parsed, err := llm.ParseJSONObject(final)
		if err != nil {
			return nil, fmt.Errorf("structured output is not valid JSON: %w", err)
		}
		produced["structured"] = parsed
	}

	return &Result{
		Output:    merge(hctx.Input, produced),
		Next:      hctx.Graph.NextNodes(node.ID, ""),
		ToolCalls: transcript,
	}, nil
}

// invoke executes one tool call. Failures are reported back to the
// model as an error message rather than failing the node, so the
// model can recover or give up on its own.
func (h *AgentHandler) invoke(ctx context.Context, byName map[string]*models.Tool, call openai.ToolCall) (string, map[string]any) {
	record := map[string]any{
		"tool":      call.Function.Name,
		"arguments": call.Function.Arguments,
	}

	tool, ok := byName[call.Function.Name]
	if !ok {
		msg := fmt.Sprintf("error: unknown tool %q", call.Function.Name)
		record["error"] = msg
		return msg, record
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			msg := fmt.Sprintf("error: invalid tool arguments: %v", err)
			record["error"] = msg
			return msg, record
		}
	}

	result, err := h.executor.Execute(ctx, tool, args)
	if err != nil {
		msg := fmt.Sprintf("error: %v", err)
		record["error"] = msg
		return msg, record
	}

	record["result"] = result
	return result, record
}

func (h *AgentHandler) loadTools(ctx context.Context, cfg map[string]any) ([]*models.Tool, error) {
	raw, ok := cfg["tools"].([]any)
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	var ids []uuid.UUID
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("config field \"tools\" must be a list of tool ids")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid tool id %q: %w", s, err)
		}
		ids = append(ids, id)
	}

	return h.toolSource.GetByIDs(ctx, ids)
}
