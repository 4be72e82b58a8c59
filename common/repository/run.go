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

// RunRepository handles database operations for workflow runs
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, workflow_id, status, initial_input, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		run.ID,
		run.WorkflowID,
		run.Status,
		run.InitialInput,
		run.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Get retrieves a run by its ID
func (r *RunRepository) Get(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	query := `
		SELECT id, workflow_id, status, initial_input, started_at, finished_at
		FROM runs
		WHERE id = $1
	`

	run := &models.Run{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.WorkflowID,
		&run.Status,
		&run.InitialInput,
		&run.StartedAt,
		&run.FinishedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// SetStatus transitions a run's status. failed is sticky: once a run
// fails nothing moves it out of failed. A completed run may still move
// to failed (a fork sibling erroring after another branch reached an
// end node) but never back to running or awaiting_approval.
func (r *RunRepository) SetStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	query := `
		UPDATE runs
		SET status = $2,
		    finished_at = CASE
		        WHEN $2 IN ('completed', 'failed') THEN COALESCE(finished_at, now())
		        ELSE finished_at
		    END
		WHERE id = $1
		  AND status <> 'failed'
		  AND NOT (status = 'completed' AND $2 IN ('running', 'awaiting_approval'))
	`

	_, err := r.db.Exec(ctx, query, runID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set run status: %w", err)
	}

	return nil
}

// ListByWorkflow retrieves runs of a workflow, newest first
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, workflow_id, status, initial_input, started_at, finished_at
		FROM runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run := &models.Run{}
		err := rows.Scan(
			&run.ID,
			&run.WorkflowID,
			&run.Status,
			&run.InitialInput,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
