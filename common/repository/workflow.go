package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lyzr/agentflow/common/db"
	"github.com/lyzr/agentflow/common/models"
)

// WorkflowRepository handles database operations for workflows
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// Get retrieves a workflow by id, scoped to its owner. Soft-deleted
// workflows are invisible here, but runs started before the delete
// keep executing against the graph snapshot tables.
func (r *WorkflowRepository) Get(ctx context.Context, id uuid.UUID, owner string) (*models.Workflow, error) {
	query := `
		SELECT id, owner, name, description, is_deleted, created_at
		FROM workflows
		WHERE id = $1 AND owner = $2 AND is_deleted = false
	`

	wf := &models.Workflow{}
	err := r.db.QueryRow(ctx, query, id, owner).Scan(
		&wf.ID,
		&wf.Owner,
		&wf.Name,
		&wf.Description,
		&wf.IsDeleted,
		&wf.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// GetAny retrieves a workflow by id without an ownership filter. The
// engine uses it when executing jobs, where ownership was checked at
// enqueue time.
func (r *WorkflowRepository) GetAny(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	query := `
		SELECT id, owner, name, description, is_deleted, created_at
		FROM workflows
		WHERE id = $1
	`

	wf := &models.Workflow{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&wf.ID,
		&wf.Owner,
		&wf.Name,
		&wf.Description,
		&wf.IsDeleted,
		&wf.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// Graph loads the live node and edge definitions for a workflow.
// In-flight runs always execute against the current definitions, so
// edits to a workflow affect nodes that have not been dispatched yet.
func (r *WorkflowRepository) Graph(ctx context.Context, workflowID uuid.UUID) ([]models.Node, []models.Edge, error) {
	nodeQuery := `
		SELECT id, workflow_id, type, config, pos_x, pos_y
		FROM workflow_nodes
		WHERE workflow_id = $1
	`

	rows, err := r.db.Query(ctx, nodeQuery, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		var n models.Node
		if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Type, &n.Config, &n.PosX, &n.PosY); err != nil {
			return nil, nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	edgeQuery := `
		SELECT id, workflow_id, source_node, target_node, source_handle, target_handle
		FROM workflow_edges
		WHERE workflow_id = $1
	`

	edgeRows, err := r.db.Query(ctx, edgeQuery, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []models.Edge
	for edgeRows.Next() {
		var e models.Edge
		if err := edgeRows.Scan(&e.ID, &e.WorkflowID, &e.Source, &e.Target, &e.SourceHandle, &e.TargetHandle); err != nil {
			return nil, nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return nodes, edges, nil
}
