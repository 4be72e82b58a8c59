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

// ApprovalRepository handles pending approval requests. A run has at
// most one pending request (run_id is the primary key); the request is
// deleted atomically on resume so a duplicate resume finds nothing.
type ApprovalRepository struct {
	db *db.DB
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(database *db.DB) *ApprovalRepository {
	return &ApprovalRepository{db: database}
}

// Create records a pending approval request for a suspended run
func (r *ApprovalRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	query := `
		INSERT INTO approvals (run_id, node_id, message, pending_input, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE
		SET node_id = EXCLUDED.node_id,
		    message = EXCLUDED.message,
		    pending_input = EXCLUDED.pending_input,
		    created_at = EXCLUDED.created_at
	`

	_, err := r.db.Exec(ctx, query, req.RunID, req.NodeID, req.Message, req.PendingInput, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	return nil
}

// Get retrieves the pending approval request for a run
func (r *ApprovalRepository) Get(ctx context.Context, runID uuid.UUID) (*models.ApprovalRequest, error) {
	query := `
		SELECT run_id, node_id, message, pending_input, created_at
		FROM approvals
		WHERE run_id = $1
	`

	req := &models.ApprovalRequest{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&req.RunID,
		&req.NodeID,
		&req.Message,
		&req.PendingInput,
		&req.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyResumed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}

	return req, nil
}

// Take atomically claims and removes the pending approval request for
// a run. The delete is scoped to the node so a resume naming the wrong
// node removes nothing. Only one caller can win; a second resume
// attempt gets ErrAlreadyResumed.
func (r *ApprovalRepository) Take(ctx context.Context, runID uuid.UUID, nodeID string) (*models.ApprovalRequest, error) {
	query := `
		DELETE FROM approvals
		WHERE run_id = $1 AND node_id = $2
		RETURNING run_id, node_id, message, pending_input, created_at
	`

	req := &models.ApprovalRequest{}
	err := r.db.QueryRow(ctx, query, runID, nodeID).Scan(
		&req.RunID,
		&req.NodeID,
		&req.Message,
		&req.PendingInput,
		&req.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyResumed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take approval request: %w", err)
	}

	return req, nil
}
