package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/agentflow/cmd/worker/handlers"
	"github.com/lyzr/agentflow/cmd/worker/resolver"
	"github.com/lyzr/agentflow/common/config"
	"github.com/lyzr/agentflow/common/events"
	"github.com/lyzr/agentflow/common/graph"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/metrics"
	"github.com/lyzr/agentflow/common/models"
	"github.com/lyzr/agentflow/common/queue"
)

// GraphLoader loads the live node and edge definitions of a workflow.
// Jobs carry ids, not definitions, so edits to a workflow take effect
// for nodes that have not been dispatched yet.
type GraphLoader interface {
	Graph(ctx context.Context, workflowID uuid.UUID) ([]models.Node, []models.Edge, error)
}

// RunStore reads and transitions run status
type RunStore interface {
	Get(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	SetStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error
}

// LedgerStore appends and finishes execution ledger rows
type LedgerStore interface {
	Begin(ctx context.Context, entry *models.LedgerEntry) error
	Finish(ctx context.Context, entryID uuid.UUID, output map[string]any, toolCalls any, errMsg *string, finishedAt time.Time) error
}

// ApprovalStore records pending approval requests
type ApprovalStore interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
}

// Sequencer hands out the per-run monotonic ledger sequence
type Sequencer interface {
	NextSequence(ctx context.Context, runID string) (int64, error)
}

// Engine executes one node per job: ledger start, event, dispatch,
// ledger finish, successor enqueue. At-least-once delivery means a
// redelivered job appends a fresh ledger row for the new attempt.
type Engine struct {
	graphs    GraphLoader
	runs      RunStore
	ledger    LedgerStore
	approvals ApprovalStore
	seq       Sequencer
	bus       events.Publisher
	jobs      queue.Enqueuer
	registry  *handlers.Registry
	cfg       config.EngineConfig
	log       *logger.Logger
}

// New creates an engine
func New(
	graphs GraphLoader,
	runs RunStore,
	ledger LedgerStore,
	approvals ApprovalStore,
	seq Sequencer,
	bus events.Publisher,
	jobs queue.Enqueuer,
	registry *handlers.Registry,
	cfg config.EngineConfig,
	log *logger.Logger,
) *Engine {
	return &Engine{
		graphs:    graphs,
		runs:      runs,
		ledger:    ledger,
		approvals: approvals,
		seq:       seq,
		bus:       bus,
		jobs:      jobs,
		registry:  registry,
		cfg:       cfg,
		log:       log,
	}
}

// HandleJob processes one job. A non-nil return leaves the message
// un-acked for broker redelivery; logical failures (bad config, LLM
// refusal, timeout) fail the run and return nil.
func (e *Engine) HandleJob(ctx context.Context, job *queue.Job) error {
	runID, err := uuid.Parse(job.RunID)
	if err != nil {
		e.log.Error("dropping job with invalid run id", "run_id", job.RunID)
		return nil
	}
	workflowID, err := uuid.Parse(job.WorkflowID)
	if err != nil {
		e.log.Error("dropping job with invalid workflow id", "workflow_id", job.WorkflowID)
		return nil
	}

	log := e.log.WithRunID(job.RunID).WithNodeID(job.NodeID)

	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status == models.RunFailed {
		// A sibling branch already failed the run
		log.Info("skipping job for failed run")
		return nil
	}

	nodeList, edges, err := e.graphs.Graph(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	nodes := make([]*models.Node, len(nodeList))
	for i := range nodeList {
		nodes[i] = &nodeList[i]
	}
	g := graph.New(nodes, edges)

	node := g.Node(job.NodeID)
	if node == nil {
		e.failRun(ctx, job, nil, fmt.Sprintf("node %s not found in workflow", job.NodeID))
		return nil
	}

	sequence, err := e.seq.NextSequence(ctx, job.RunID)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	entry := &models.LedgerEntry{
		ID:        uuid.New(),
		RunID:     runID,
		NodeID:    job.NodeID,
		NodeType:  node.Type,
		Sequence:  sequence,
		Input:     job.Input,
		StartedAt: time.Now().UTC(),
	}
	if err := e.ledger.Begin(ctx, entry); err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}

	e.bus.Publish(ctx, job.WorkflowID, &events.Event{
		EventType: events.TypeNodeStarted,
		RunID:     job.RunID,
		NodeID:    job.NodeID,
		NodeType:  string(node.Type),
		InputData: job.Input,
		Sequence:  &sequence,
	})

	result, execErr := e.execute(ctx, g, node, job)

	if execErr != nil {
		metrics.NodesExecuted.WithLabelValues(string(node.Type), "error").Inc()
		e.finishWithError(ctx, entry, execErr)
		e.failRun(ctx, job, node, execErr.Error())
		return nil
	}

	if result.Suspend != nil {
		return e.suspend(ctx, job, node, result.Suspend)
	}

	finishedAt := time.Now().UTC()
	if err := e.ledger.Finish(ctx, entry.ID, result.Output, result.ToolCalls, nil, finishedAt); err != nil {
		return fmt.Errorf("ledger finish: %w", err)
	}

	duration := finishedAt.Sub(entry.StartedAt).Milliseconds()
	metrics.NodesExecuted.WithLabelValues(string(node.Type), "ok").Inc()
	metrics.NodeDuration.WithLabelValues(string(node.Type)).Observe(finishedAt.Sub(entry.StartedAt).Seconds())

	e.bus.Publish(ctx, job.WorkflowID, &events.Event{
		EventType:  events.TypeNodeCompleted,
		RunID:      job.RunID,
		NodeID:     job.NodeID,
		NodeType:   string(node.Type),
		OutputData: result.Output,
		DurationMS: &duration,
	})

	if node.Type == models.NodeEnd {
		return e.complete(ctx, job, result.Output)
	}

	if len(result.Next) == 0 {
		// Dead-end path (e.g. if_else branch with no edge): nothing
		// left to do, the run completes without an end-node output
		log.Info("path terminated without successors")
		return e.complete(ctx, job, nil)
	}

	for _, next := range result.Next {
		if err := e.jobs.Enqueue(ctx, &queue.Job{
			RunID:      job.RunID,
			WorkflowID: job.WorkflowID,
			NodeID:     next,
			Input:      result.Output,
		}); err != nil {
			return fmt.Errorf("enqueue successor %s: %w", next, err)
		}
	}

	return nil
}

// execute dispatches to the node handler under the per-node wall
// clock budget
func (e *Engine) execute(ctx context.Context, g *graph.Graph, node *models.Node, job *queue.Job) (*handlers.Result, error) {
	r, err := resolver.New(job.Input)
	if err != nil {
		return nil, err
	}

	runID, _ := uuid.Parse(job.RunID)
	workflowID, _ := uuid.Parse(job.WorkflowID)

	hctx := &handlers.Context{
		WorkflowID: workflowID,
		RunID:      runID,
		NodeID:     job.NodeID,
		Input:      job.Input,
		Graph:      g,
		Resolver:   r,
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.NodeTimeout)
	defer cancel()

	result, err := e.registry.Execute(execCtx, node, hctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || execCtx.Err() == context.DeadlineExceeded {
			return nil, errors.New("timeout")
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) suspend(ctx context.Context, job *queue.Job, node *models.Node, s *handlers.Suspend) error {
	runID, _ := uuid.Parse(job.RunID)

	if err := e.approvals.Create(ctx, &models.ApprovalRequest{
		RunID:        runID,
		NodeID:       job.NodeID,
		Message:      s.Message,
		PendingInput: job.Input,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}

	if err := e.runs.SetStatus(ctx, runID, models.RunAwaitingApproval); err != nil {
		return fmt.Errorf("set run awaiting approval: %w", err)
	}

	metrics.ApprovalsSuspended.Inc()

	e.bus.Publish(ctx, job.WorkflowID, &events.Event{
		EventType: events.TypeApprovalNeeded,
		RunID:     job.RunID,
		NodeID:    job.NodeID,
		NodeType:  string(node.Type),
		Message:   s.Message,
	})

	e.log.WithRunID(job.RunID).Info("run suspended for approval", "node_id", job.NodeID)
	return nil
}

func (e *Engine) complete(ctx context.Context, job *queue.Job, finalOutput map[string]any) error {
	runID, _ := uuid.Parse(job.RunID)

	if err := e.runs.SetStatus(ctx, runID, models.RunCompleted); err != nil {
		return fmt.Errorf("set run completed: %w", err)
	}

	metrics.RunsCompleted.Inc()

	e.bus.Publish(ctx, job.WorkflowID, &events.Event{
		EventType:   events.TypeRunCompleted,
		RunID:       job.RunID,
		WorkflowID:  job.WorkflowID,
		FinalOutput: finalOutput,
	})

	e.log.WithRunID(job.RunID).Info("run completed")
	return nil
}

func (e *Engine) finishWithError(ctx context.Context, entry *models.LedgerEntry, execErr error) {
	msg := execErr.Error()
	if err := e.ledger.Finish(ctx, entry.ID, nil, nil, &msg, time.Now().UTC()); err != nil {
		e.log.Error("failed to record node error on ledger", "entry_id", entry.ID, "error", err)
	}
}

func (e *Engine) failRun(ctx context.Context, job *queue.Job, node *models.Node, message string) {
	runID, _ := uuid.Parse(job.RunID)

	nodeType := ""
	if node != nil {
		nodeType = string(node.Type)
	}

	e.bus.Publish(ctx, job.WorkflowID, &events.Event{
		EventType: events.TypeNodeError,
		RunID:     job.RunID,
		NodeID:    job.NodeID,
		NodeType:  nodeType,
		Message:   message,
	})

	if err := e.runs.SetStatus(ctx, runID, models.RunFailed); err != nil {
		e.log.Error("failed to mark run failed", "run_id", job.RunID, "error", err)
	}

	metrics.RunsFailed.Inc()

	e.bus.Publish(ctx, job.WorkflowID, &events.Event{
		EventType:  events.TypeRunFailed,
		RunID:      job.RunID,
		WorkflowID: job.WorkflowID,
		Error:      message,
	})

	e.log.WithRunID(job.RunID).Error("run failed", "node_id", job.NodeID, "error", message)
}
