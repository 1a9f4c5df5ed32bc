// Package execution keeps the audit trail of gate requests.
package execution

import (
	"time"

	executionDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/execution"
	"github.com/frahmantamala/scriptdeck/internal/core/events"
)

type Record struct {
	ID           string    `json:"id"`
	ModuleID     string    `json:"module_id"`
	RoleID       string    `json:"role"`
	UserID       int64     `json:"user_id"`
	Status       string    `json:"status"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	ErrorMessage string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

type ListFilter struct {
	ModuleID string
	UserID   int64
	Limit    int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

type RecordsResponse struct {
	Executions []*Record `json:"executions"`
}

func FromEvent(e *events.ExecutionCompletedEvent) *executionDatamodel.Execution {
	return &executionDatamodel.Execution{
		ID:           e.ExecutionID,
		ModuleID:     e.ModuleID,
		RoleID:       e.RoleID,
		UserID:       e.UserID,
		Status:       e.Status,
		ExitCode:     e.ExitCode,
		ElapsedMs:    e.ElapsedMs,
		ErrorMessage: e.ErrorMessage,
		StartedAt:    e.StartedAt.UTC(),
	}
}

func FromDataModel(e *executionDatamodel.Execution) *Record {
	return &Record{
		ID:           e.ID,
		ModuleID:     e.ModuleID,
		RoleID:       e.RoleID,
		UserID:       e.UserID,
		Status:       e.Status,
		ExitCode:     e.ExitCode,
		ElapsedMs:    e.ElapsedMs,
		ErrorMessage: e.ErrorMessage,
		StartedAt:    e.StartedAt,
	}
}
