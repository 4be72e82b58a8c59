package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/cmd/worker/resolver"
	"github.com/lyzr/agentflow/common/graph"
	"github.com/lyzr/agentflow/common/models"
)

// stubLLM replies with canned responses in order, or via fn when set
type stubLLM struct {
	responses []*llm.Response
	fn        func(req *llm.Request) (*llm.Response, error)
	requests  []*llm.Request
}

func (s *stubLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.fn != nil {
		return s.fn(req)
	}
	if len(s.responses) == 0 {
		return &llm.Response{Content: "done"}, nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

// stubToolSource serves tools from memory
type stubToolSource struct {
	tools []*models.Tool
}

func (s *stubToolSource) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Tool, error) {
	return s.tools, nil
}

// stubExecutor returns a fixed result for every invocation
type stubExecutor struct {
	result string
	err    error
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, tool *models.Tool, args map[string]any) (string, error) {
	s.calls++
	return s.result, s.err
}

func testContext(g *graph.Graph, nodeID string, input map[string]any) *Context {
	r, _ := resolver.New(input)
	return &Context{
		WorkflowID: uuid.New(),
		RunID:      uuid.New(),
		NodeID:     nodeID,
		Input:      input,
		Graph:      g,
		Resolver:   r,
	}
}

func testNode(id string, typ models.NodeType, cfg map[string]any) *models.Node {
	if cfg == nil {
		cfg = map[string]any{}
	}
	return &models.Node{ID: id, Type: typ, Config: cfg}
}

func testGraph(nodes []*models.Node, edges []models.Edge) *graph.Graph {
	return graph.New(nodes, edges)
}

func testEdge(id, source, target, handle string) models.Edge {
	return models.Edge{ID: id, Source: source, Target: target, SourceHandle: handle}
}
