package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/constants"
)

// RunOptions are the per-run switches as chosen by the caller.
type RunOptions struct {
	Normalize      bool   `json:"normalize"`
	FileColumn     bool   `json:"file_column"`
	FileColumnName string `json:"file_column_name,omitempty"`
}

// Run represents one batch run for data transfer between layers.
type Run struct {
	ID            uuid.UUID           `json:"id"`
	Status        constants.RunStatus `json:"status"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
	ErrorMessage  *string             `json:"error_message,omitempty"`
	Options       RunOptions          `json:"options"`
	Patterns      json.RawMessage     `json:"-"`
	Columns       []string            `json:"columns"`
	DocumentCount int                 `json:"document_count"`
}

// RunRow is one stored result row, in document order.
type RunRow struct {
	RunID      uuid.UUID          `json:"run_id"`
	Position   int                `json:"position"`
	FileName   string             `json:"file_name"`
	Method     string             `json:"method"`
	Chars      int                `json:"chars"`
	Pages      int                `json:"pages"`
	Unreadable bool               `json:"unreadable"`
	Matched    int                `json:"matched"`
	Values     map[string]*string `json:"values"`
}
