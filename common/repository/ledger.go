package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/agentflow/common/db"
	"github.com/lyzr/agentflow/common/models"
)

// LedgerRepository handles the append-only execution ledger
type LedgerRepository struct {
	db *db.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(database *db.DB) *LedgerRepository {
	return &LedgerRepository{db: database}
}

// Begin appends a row for a node execution that just started. The row
// carries the resolved input; output and finish fields stay null until
// Finish. A redelivered job appends a fresh row for the new attempt.
func (r *LedgerRepository) Begin(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger (id, run_id, node_id, node_type, sequence, input, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		entry.ID,
		entry.RunID,
		entry.NodeID,
		entry.NodeType,
		entry.Sequence,
		entry.Input,
		entry.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// Finish records the outcome of a node execution on its ledger row.
// Exactly one of output or errMsg is meaningful; tool call transcripts
// ride along for agent nodes.
func (r *LedgerRepository) Finish(ctx context.Context, entryID uuid.UUID, output map[string]any, toolCalls any, errMsg *string, finishedAt time.Time) error {
	query := `
		UPDATE ledger
		SET output = $2,
		    tool_calls = $3,
		    error = $4,
		    finished_at = $5,
		    duration_ms = (EXTRACT(EPOCH FROM ($5 - started_at)) * 1000)::bigint
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, entryID, output, toolCalls, errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish ledger entry: %w", err)
	}

	return nil
}

// ListByRun retrieves a run's ledger ordered by sequence
func (r *LedgerRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, run_id, node_id, node_type, sequence, input, output, tool_calls,
		       started_at, finished_at, duration_ms, error
		FROM ledger
		WHERE run_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry := &models.LedgerEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.NodeID,
			&entry.NodeType,
			&entry.Sequence,
			&entry.Input,
			&entry.Output,
			&entry.ToolCalls,
			&entry.StartedAt,
			&entry.FinishedAt,
			&entry.DurationMS,
			&entry.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger: %w", err)
	}

	return entries, nil
}
