package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentflow/cmd/api/middleware"
	"github.com/lyzr/agentflow/common/events"
	"github.com/lyzr/agentflow/common/graph"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/metrics"
	"github.com/lyzr/agentflow/common/models"
	"github.com/lyzr/agentflow/common/queue"
	"github.com/lyzr/agentflow/common/repository"
)

// WorkflowStore is the slice of the workflow repository the run
// endpoints need: ownership checks and graph loads.
type WorkflowStore interface {
	Get(ctx context.Context, id uuid.UUID, owner string) (*models.Workflow, error)
	Graph(ctx context.Context, workflowID uuid.UUID) ([]models.Node, []models.Edge, error)
}

// RunStore persists run rows
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	SetStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Run, error)
}

// LedgerStore reads a run's execution ledger
type LedgerStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.LedgerEntry, error)
}

// ApprovalStore claims pending approval requests on resume
type ApprovalStore interface {
	Take(ctx context.Context, runID uuid.UUID, nodeID string) (*models.ApprovalRequest, error)
}

// RunHandler serves the run lifecycle endpoints: execute, approve,
// replay and the read side (list, detail, ledger).
type RunHandler struct {
	workflows WorkflowStore
	runs      RunStore
	ledger    LedgerStore
	approvals ApprovalStore
	bus       events.Publisher
	jobs      queue.Enqueuer
	log       *logger.Logger
}

// NewRunHandler creates the run handler
func NewRunHandler(
	workflows WorkflowStore,
	runs RunStore,
	ledger LedgerStore,
	approvals ApprovalStore,
	bus events.Publisher,
	jobs queue.Enqueuer,
	log *logger.Logger,
) *RunHandler {
	return &RunHandler{
		workflows: workflows,
		runs:      runs,
		ledger:    ledger,
		approvals: approvals,
		bus:       bus,
		jobs:      jobs,
		log:       log,
	}
}

// Execute starts a run: creates the Run row, publishes run_started
// and enqueues the start node with the request body as initial input.
// POST /workflows/:id/execute
func (h *RunHandler) Execute(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid workflow id"))
	}

	var initialInput map[string]any
	if err := c.Bind(&initialInput); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("request body must be a JSON object"))
	}
	if initialInput == nil {
		initialInput = map[string]any{}
	}

	username := middleware.GetUsername(c)
	if _, err := h.workflows.Get(c.Request().Context(), workflowID, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errBody("workflow not found"))
		}
		return internalError(c, err)
	}

	startID, status, err := h.startNodeID(c, workflowID)
	if err != nil {
		return c.JSON(status, errBody(err.Error()))
	}

	run := &models.Run{
		ID:           uuid.New(),
		WorkflowID:   workflowID,
		Status:       models.RunRunning,
		InitialInput: initialInput,
		StartedAt:    time.Now().UTC(),
	}
	if err := h.runs.Create(c.Request().Context(), run); err != nil {
		return internalError(c, err)
	}

	metrics.RunsStarted.Inc()

	h.bus.Publish(c.Request().Context(), workflowID.String(), &events.Event{
		EventType:    events.TypeRunStarted,
		RunID:        run.ID.String(),
		WorkflowID:   workflowID.String(),
		InitialInput: initialInput,
	})

	if err := h.jobs.Enqueue(c.Request().Context(), &queue.Job{
		RunID:      run.ID.String(),
		WorkflowID: workflowID.String(),
		NodeID:     startID,
		Input:      initialInput,
	}); err != nil {
		return internalError(c, err)
	}

	h.log.WithRunID(run.ID.String()).Info("run started", "workflow_id", workflowID)

	return c.JSON(http.StatusAccepted, map[string]any{
		"run_id": run.ID,
	})
}

// Approve resumes a run suspended at a user_approval node.
// POST /workflows/:id/runs/:run_id/nodes/:node_id/approve
func (h *RunHandler) Approve(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid workflow id"))
	}
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid run id"))
	}
	nodeID := c.Param("node_id")

	var body struct {
		Decision string `json:"decision"`
		Message  string `json:"message"`
	}
	if err := c.Bind(&body); err != nil || body.Decision == "" {
		return c.JSON(http.StatusBadRequest, errBody("decision is required"))
	}

	ctx := c.Request().Context()

	username := middleware.GetUsername(c)
	if _, err := h.workflows.Get(ctx, workflowID, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errBody("workflow not found"))
		}
		return internalError(c, err)
	}

	run, err := h.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errBody("run not found"))
		}
		return internalError(c, err)
	}
	if run.WorkflowID != workflowID {
		return c.JSON(http.StatusNotFound, errBody("run not found for workflow"))
	}
	if run.Status != models.RunAwaitingApproval {
		return c.JSON(http.StatusConflict, errBody("run is not awaiting approval"))
	}

	// The claim is scoped to the node: naming the wrong node deletes
	// nothing and the run stays resumable.
	req, err := h.approvals.Take(ctx, runID, nodeID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyResumed) {
			return c.JSON(http.StatusNotFound, errBody("no pending approval for node"))
		}
		return internalError(c, err)
	}

	if err := h.runs.SetStatus(ctx, runID, models.RunRunning); err != nil {
		return internalError(c, err)
	}

	message := body.Message
	if message == "" {
		message = req.Message
	}

	input := make(map[string]any, len(req.PendingInput)+2)
	for k, v := range req.PendingInput {
		input[k] = v
	}
	input["approval_decision"] = body.Decision
	input["approval_message"] = message

	if err := h.jobs.Enqueue(ctx, &queue.Job{
		RunID:      runID.String(),
		WorkflowID: workflowID.String(),
		NodeID:     nodeID,
		Input:      input,
	}); err != nil {
		return internalError(c, err)
	}

	h.log.WithRunID(runID.String()).Info("run resumed", "node_id", nodeID, "decision", body.Decision)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"run_id":  runID,
	})
}

// Replay starts a fresh run with the original run's initial input.
// POST /runs/:run_id/replay
func (h *RunHandler) Replay(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid run id"))
	}

	ctx := c.Request().Context()

	original, err := h.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errBody("run not found"))
		}
		return internalError(c, err)
	}

	username := middleware.GetUsername(c)
	if _, err := h.workflows.Get(ctx, original.WorkflowID, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errBody("workflow not found"))
		}
		return internalError(c, err)
	}

	startID, status, err := h.startNodeID(c, original.WorkflowID)
	if err != nil {
		return c.JSON(status, errBody(err.Error()))
	}

	replay := &models.Run{
		ID:           uuid.New(),
		WorkflowID:   original.WorkflowID,
		Status:       models.RunRunning,
		InitialInput: original.InitialInput,
		StartedAt:    time.Now().UTC(),
	}
	if err := h.runs.Create(ctx, replay); err != nil {
		return internalError(c, err)
	}

	metrics.RunsStarted.Inc()

	h.bus.Publish(ctx, original.WorkflowID.String(), &events.Event{
		EventType:    events.TypeRunStarted,
		RunID:        replay.ID.String(),
		WorkflowID:   original.WorkflowID.String(),
		InitialInput: replay.InitialInput,
	})

	if err := h.jobs.Enqueue(ctx, &queue.Job{
		RunID:      replay.ID.String(),
		WorkflowID: original.WorkflowID.String(),
		NodeID:     startID,
		Input:      replay.InitialInput,
	}); err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"run_id": replay.ID,
	})
}

// List returns the runs of a workflow, newest first.
// GET /workflows/:id/runs
func (h *RunHandler) List(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid workflow id"))
	}

	ctx := c.Request().Context()

	username := middleware.GetUsername(c)
	if _, err := h.workflows.Get(ctx, workflowID, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errBody("workflow not found"))
		}
		return internalError(c, err)
	}

	runs, err := h.runs.ListByWorkflow(ctx, workflowID, 100)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// Detail returns one run.
// GET /runs/:run_id
func (h *RunHandler) Detail(c echo.Context) error {
	run, status, err := h.authorizedRun(c)
	if err != nil {
		return c.JSON(status, errBody(err.Error()))
	}

	return c.JSON(http.StatusOK, run)
}

// Ledger returns a run's execution ledger ordered by sequence.
// GET /runs/:run_id/ledger
func (h *RunHandler) Ledger(c echo.Context) error {
	run, status, err := h.authorizedRun(c)
	if err != nil {
		return c.JSON(status, errBody(err.Error()))
	}

	entries, err := h.ledger.ListByRun(c.Request().Context(), run.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"run_id": run.ID,
		"ledger": entries,
	})
}

// authorizedRun loads a run and checks the caller owns its workflow
func (h *RunHandler) authorizedRun(c echo.Context) (*models.Run, int, error) {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid run id")
	}

	ctx := c.Request().Context()

	run, err := h.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, http.StatusNotFound, errors.New("run not found")
		}
		return nil, http.StatusInternalServerError, errors.New("internal error")
	}

	username := middleware.GetUsername(c)
	if _, err := h.workflows.Get(ctx, run.WorkflowID, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, http.StatusNotFound, errors.New("run not found")
		}
		return nil, http.StatusInternalServerError, errors.New("internal error")
	}

	return run, http.StatusOK, nil
}

// startNodeID loads the graph and returns its start node id, plus the
// HTTP status to reply with when it cannot
func (h *RunHandler) startNodeID(c echo.Context, workflowID uuid.UUID) (string, int, error) {
	nodes, edges, err := h.workflows.Graph(c.Request().Context(), workflowID)
	if err != nil {
		return "", http.StatusInternalServerError, errors.New("internal error")
	}

	ptrs := make([]*models.Node, len(nodes))
	for i := range nodes {
		ptrs[i] = &nodes[i]
	}

	start, err := graph.New(ptrs, edges).StartNode()
	if err != nil {
		return "", http.StatusUnprocessableEntity, err
	}
	return start.ID, http.StatusOK, nil
}

func errBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func internalError(c echo.Context, err error) error {
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errBody("internal error"))
}
