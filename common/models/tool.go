package models

import (
	"github.com/google/uuid"
)

// ToolParameter describes one argument of a tool. Parameters are
// presented to the LLM as string-typed properties.
type ToolParameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tool is an HTTP-backed function an agent node can call.
// Maps to: tools table
type Tool struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description"`
	Parameters  []ToolParameter   `db:"parameters" json:"parameters"`
	APIURL      string            `db:"api_url" json:"api_url"`
	Method      string            `db:"method" json:"method"`
	Headers     map[string]string `db:"headers" json:"headers,omitempty"`
}
