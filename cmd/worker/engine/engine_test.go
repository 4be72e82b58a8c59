package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentflow/cmd/worker/handlers"
	"github.com/lyzr/agentflow/cmd/worker/llm"
	"github.com/lyzr/agentflow/common/config"
	"github.com/lyzr/agentflow/common/events"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/models"
	"github.com/lyzr/agentflow/common/queue"
)

type fakeGraphs struct {
	nodes []models.Node
	edges []models.Edge
	err   error
}

func (f *fakeGraphs) Graph(ctx context.Context, workflowID uuid.UUID) ([]models.Node, []models.Edge, error) {
	return f.nodes, f.edges, f.err
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.Run
	err  error
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[uuid.UUID]*models.Run)}
}

func (f *fakeRuns) Get(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	run, ok := f.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	cp := *run
	return &cp, nil
}

// SetStatus mirrors the store guard: failed is sticky and a completed
// run cannot go back to running or awaiting_approval
func (f *fakeRuns) SetStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	if run.Status == models.RunFailed {
		return nil
	}
	if run.Status == models.RunCompleted &&
		(status == models.RunRunning || status == models.RunAwaitingApproval) {
		return nil
	}
	run.Status = status
	return nil
}

func (f *fakeRuns) status(runID uuid.UUID) models.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[runID].Status
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (f *fakeLedger) Begin(ctx context.Context, entry *models.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeLedger) Finish(ctx context.Context, entryID uuid.UUID, output map[string]any, toolCalls any, errMsg *string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == entryID {
			e.Output = output
			e.ToolCalls = toolCalls
			e.Error = errMsg
			e.FinishedAt = &finishedAt
			return nil
		}
	}
	return errors.New("ledger entry not found")
}

type fakeApprovals struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.ApprovalRequest
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{requests: make(map[uuid.UUID]*models.ApprovalRequest)}
}

func (f *fakeApprovals) Create(ctx context.Context, req *models.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[req.RunID] = req
	return nil
}

type fakeSeq struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func newFakeSeq() *fakeSeq { return &fakeSeq{seqs: make(map[string]int64)} }

func (f *fakeSeq) NextSequence(ctx context.Context, runID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seqs[runID]++
	return f.seqs[runID], nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []*events.Event
}

func (f *fakeBus) Publish(ctx context.Context, workflowID string, event *events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBus) ofType(eventType string) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) pop() *queue.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job
}

type scriptedLLM struct {
	responses []*llm.Response
	fn        func(req *llm.Request) (*llm.Response, error)
}

func (s *scriptedLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
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

type noTools struct{}

func (noTools) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Tool, error) {
	return nil, nil
}

type noExec struct{}

func (noExec) Execute(ctx context.Context, tool *models.Tool, args map[string]any) (string, error) {
	return "", errors.New("no executor in tests")
}

type harness struct {
	engine    *Engine
	runs      *fakeRuns
	ledger    *fakeLedger
	approvals *fakeApprovals
	bus       *fakeBus
	queue     *fakeQueue

	workflowID uuid.UUID
	runID      uuid.UUID
}

func newHarness(t *testing.T, client llm.Client, nodes []models.Node, edges []models.Edge) *harness {
	t.Helper()

	registry := handlers.NewRegistry()
	registry.Register(handlers.NewStartHandler())
	registry.Register(handlers.NewEndHandler())
	registry.Register(handlers.NewIfElseHandler())
	registry.Register(handlers.NewForkHandler())
	registry.Register(handlers.NewApprovalHandler())
	registry.Register(handlers.NewGuardrailsHandler(client, "test-model"))
	registry.Register(handlers.NewAgentHandler(client, noTools{}, noExec{}, "test-model", 3))

	h := &harness{
		runs:       newFakeRuns(),
		ledger:     &fakeLedger{},
		approvals:  newFakeApprovals(),
		bus:        &fakeBus{},
		queue:      &fakeQueue{},
		workflowID: uuid.New(),
		runID:      uuid.New(),
	}

	h.runs.runs[h.runID] = &models.Run{
		ID:         h.runID,
		WorkflowID: h.workflowID,
		Status:     models.RunRunning,
		StartedAt:  time.Now().UTC(),
	}

	h.engine = New(
		&fakeGraphs{nodes: nodes, edges: edges},
		h.runs,
		h.ledger,
		h.approvals,
		newFakeSeq(),
		h.bus,
		h.queue,
		registry,
		config.EngineConfig{NodeTimeout: 5 * time.Second},
		logger.New("error", "json"),
	)
	return h
}

func (h *harness) job(nodeID string, input map[string]any) *queue.Job {
	return &queue.Job{
		RunID:      h.runID.String(),
		WorkflowID: h.workflowID.String(),
		NodeID:     nodeID,
		Input:      input,
	}
}

// pump processes the given job and then everything it enqueues,
// breadth first, the way the worker pool would
func (h *harness) pump(t *testing.T, first *queue.Job) {
	t.Helper()
	job := first
	for job != nil {
		require.NoError(t, h.engine.HandleJob(context.Background(), job))
		job = h.queue.pop()
	}
}

func node(id string, typ models.NodeType, cfg map[string]any) models.Node {
	if cfg == nil {
		cfg = map[string]any{}
	}
	return models.Node{ID: id, Type: typ, Config: cfg}
}

func edge(id, source, target, handle string) models.Edge {
	return models.Edge{ID: id, Source: source, Target: target, SourceHandle: handle}
}

func TestLinearRunCompletes(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{{Content: "Hello Ada!"}}}
	h := newHarness(t, client,
		[]models.Node{
			node("start", models.NodeStart, nil),
			node("greet", models.NodeAgent, map[string]any{"user_prompt": "Greet {{input.name}}"}),
			node("end", models.NodeEnd, nil),
		},
		[]models.Edge{
			edge("1", "start", "greet", ""),
			edge("2", "greet", "end", ""),
		},
	)

	h.pump(t, h.job("start", map[string]any{"name": "Ada"}))

	assert.Equal(t, models.RunCompleted, h.runs.status(h.runID))

	require.Len(t, h.ledger.entries, 3)
	for i, e := range h.ledger.entries {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.NotNil(t, e.FinishedAt, "entry %d finished", i)
		assert.Nil(t, e.Error)
	}
	assert.Equal(t, "greet", h.ledger.entries[1].NodeID)
	assert.Equal(t, "Hello Ada!", h.ledger.entries[1].Output["message"])

	completed := h.bus.ofType(events.TypeRunCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "Hello Ada!", completed[0].FinalOutput["message"])
	assert.Len(t, h.bus.ofType(events.TypeNodeStarted), 3)
	assert.Len(t, h.bus.ofType(events.TypeNodeCompleted), 3)
}

func TestDeadEndBranchCompletesRun(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{
			node("start", models.NodeStart, nil),
			node("cond", models.NodeIfElse, map[string]any{
				"lhs": "{{input.age}}", "condition": ">", "rhs": "18",
			}),
			node("adult", models.NodeEnd, nil),
		},
		[]models.Edge{
			edge("1", "start", "cond", ""),
			edge("2", "cond", "adult", "true"),
		},
	)

	h.pump(t, h.job("start", map[string]any{"age": 5.0}))

	assert.Equal(t, models.RunCompleted, h.runs.status(h.runID))
	assert.Len(t, h.ledger.entries, 2)

	completed := h.bus.ofType(events.TypeRunCompleted)
	require.Len(t, completed, 1)
	assert.Nil(t, completed[0].FinalOutput)
}

func TestApprovalSuspendAndResume(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{
			node("start", models.NodeStart, nil),
			node("gate", models.NodeUserApproval, map[string]any{"message": "ship it?"}),
			node("end", models.NodeEnd, nil),
		},
		[]models.Edge{
			edge("1", "start", "gate", ""),
			edge("2", "gate", "end", "yes"),
		},
	)

	h.pump(t, h.job("start", map[string]any{"artifact": "v2"}))

	assert.Equal(t, models.RunAwaitingApproval, h.runs.status(h.runID))

	req := h.approvals.requests[h.runID]
	require.NotNil(t, req)
	assert.Equal(t, "gate", req.NodeID)
	assert.Equal(t, "ship it?", req.Message)
	assert.Equal(t, "v2", req.PendingInput["artifact"])

	needed := h.bus.ofType(events.TypeApprovalNeeded)
	require.Len(t, needed, 1)
	assert.Equal(t, "ship it?", needed[0].Message)

	// resume the way the approve endpoint does: same node, pending
	// input plus the decision
	resumed := map[string]any{
		"artifact":          "v2",
		"approval_decision": "yes",
		"approval_message":  "go ahead",
	}
	require.NoError(t, h.runs.SetStatus(context.Background(), h.runID, models.RunRunning))
	h.pump(t, h.job("gate", resumed))

	assert.Equal(t, models.RunCompleted, h.runs.status(h.runID))

	completed := h.bus.ofType(events.TypeRunCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "yes", completed[0].FinalOutput["approval_decision"])
}

func TestToolCallLimitFailsRun(t *testing.T) {
	client := &scriptedLLM{fn: func(req *llm.Request) (*llm.Response, error) {
		return &llm.Response{ToolCalls: []openai.ToolCall{{
			ID:   "c",
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      "missing_tool",
				Arguments: "{}",
			},
		}}}, nil
	}}

	h := newHarness(t, client,
		[]models.Node{
			node("start", models.NodeStart, nil),
			node("agent", models.NodeAgent, map[string]any{"user_prompt": "loop"}),
			node("end", models.NodeEnd, nil),
		},
		[]models.Edge{
			edge("1", "start", "agent", ""),
			edge("2", "agent", "end", ""),
		},
	)

	h.pump(t, h.job("start", nil))

	assert.Equal(t, models.RunFailed, h.runs.status(h.runID))

	require.Len(t, h.ledger.entries, 2)
	agentEntry := h.ledger.entries[1]
	require.NotNil(t, agentEntry.Error)
	assert.Equal(t, "tool_call_limit_exceeded", *agentEntry.Error)

	nodeErrors := h.bus.ofType(events.TypeNodeError)
	require.Len(t, nodeErrors, 1)
	assert.Equal(t, "tool_call_limit_exceeded", nodeErrors[0].Message)

	failed := h.bus.ofType(events.TypeRunFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "tool_call_limit_exceeded", failed[0].Error)
}

func TestJobForFailedRunIsSkipped(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{node("start", models.NodeStart, nil)},
		nil,
	)
	h.runs.runs[h.runID].Status = models.RunFailed

	require.NoError(t, h.engine.HandleJob(context.Background(), h.job("start", nil)))

	assert.Empty(t, h.ledger.entries)
	assert.Empty(t, h.bus.events)
}

func TestUnknownNodeFailsRun(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{node("start", models.NodeStart, nil)},
		nil,
	)

	require.NoError(t, h.engine.HandleJob(context.Background(), h.job("ghost", nil)))

	assert.Equal(t, models.RunFailed, h.runs.status(h.runID))
	require.Len(t, h.bus.ofType(events.TypeNodeError), 1)
}

func TestInvalidRunIDDropped(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{node("start", models.NodeStart, nil)},
		nil,
	)

	err := h.engine.HandleJob(context.Background(), &queue.Job{
		RunID:      "not-a-uuid",
		WorkflowID: h.workflowID.String(),
		NodeID:     "start",
	})

	require.NoError(t, err)
	assert.Empty(t, h.ledger.entries)
}

func TestRunLoadFailureRedelivers(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{node("start", models.NodeStart, nil)},
		nil,
	)
	h.runs.err = errors.New("db down")

	err := h.engine.HandleJob(context.Background(), h.job("start", nil))
	assert.Error(t, err)
}

type stallHandler struct{}

func (stallHandler) Type() models.NodeType { return models.NodeAgent }

func (stallHandler) Execute(ctx context.Context, n *models.Node, hctx *handlers.Context) (*handlers.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNodeTimeoutFailsRunWithTimeout(t *testing.T) {
	h := newHarness(t, &scriptedLLM{},
		[]models.Node{
			node("start", models.NodeStart, nil),
			node("slow", models.NodeAgent, map[string]any{"user_prompt": "x"}),
		},
		[]models.Edge{edge("1", "start", "slow", "")},
	)

	registry := handlers.NewRegistry()
	registry.Register(handlers.NewStartHandler())
	registry.Register(stallHandler{})
	h.engine.registry = registry
	h.engine.cfg.NodeTimeout = 20 * time.Millisecond

	h.pump(t, h.job("start", nil))

	assert.Equal(t, models.RunFailed, h.runs.status(h.runID))

	slowEntry := h.ledger.entries[1]
	require.NotNil(t, slowEntry.Error)
	assert.Equal(t, "timeout", *slowEntry.Error)
}

func TestForkFansOutBranches(t *testing.T) {
	client := &scriptedLLM{fn: func(req *llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "branch result"}, nil
	}}

	h := newHarness(t, client,
		[]models.Node{
			node("start", models.NodeStart, nil),
			node("fork", models.NodeFork, nil),
			node("a", models.NodeAgent, map[string]any{"user_prompt": "a"}),
			node("b", models.NodeAgent, map[string]any{"user_prompt": "b"}),
			node("end_a", models.NodeEnd, nil),
			node("end_b", models.NodeEnd, nil),
		},
		[]models.Edge{
			edge("1", "start", "fork", ""),
			edge("2", "fork", "a", ""),
			edge("3", "fork", "b", ""),
			edge("4", "a", "end_a", ""),
			edge("5", "b", "end_b", ""),
		},
	)

	h.pump(t, h.job("start", nil))

	assert.Equal(t, models.RunCompleted, h.runs.status(h.runID))
	// start, fork, two agents, two ends
	assert.Len(t, h.ledger.entries, 6)
	// each end node publishes its own completion
	assert.Len(t, h.bus.ofType(events.TypeRunCompleted), 2)
}
