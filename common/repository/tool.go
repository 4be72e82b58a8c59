package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/agentflow/common/db"
	"github.com/lyzr/agentflow/common/models"
)

// ToolRepository handles database operations for agent tools
type ToolRepository struct {
	db *db.DB
}

// NewToolRepository creates a new tool repository
func NewToolRepository(database *db.DB) *ToolRepository {
	return &ToolRepository{db: database}
}

// GetByIDs retrieves the tools referenced by an agent node's config.
// Unknown ids are skipped; the agent runs with whatever resolved.
func (r *ToolRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, name, description, parameters, api_url, method, headers
		FROM tools
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get tools: %w", err)
	}
	defer rows.Close()

	var tools []*models.Tool
	for rows.Next() {
		tool := &models.Tool{}
		err := rows.Scan(
			&tool.ID,
			&tool.Name,
			&tool.Description,
			&tool.Parameters,
			&tool.APIURL,
			&tool.Method,
			&tool.Headers,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, tool)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tools: %w", err)
	}

	return tools, nil
}
