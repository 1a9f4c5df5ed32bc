package events

import (
	"time"
)

const (
	EventTypeExecutionCompleted = "module.execution.completed"
)

// ExecutionCompletedEvent is published for every terminal gate state,
// including denials and validation failures.
type ExecutionCompletedEvent struct {
	BaseEvent
	ExecutionID  string    `json:"execution_id"`
	ModuleID     string    `json:"module_id"`
	RoleID       string    `json:"role_id"`
	UserID       int64     `json:"user_id"`
	Status       string    `json:"status"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

func NewExecutionCompletedEvent(executionID, moduleID, roleID string, userID int64, status string, exitCode *int, elapsedMs int64, errorMessage string, startedAt time.Time) *ExecutionCompletedEvent {
	return &ExecutionCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        executionID,
			Type:      EventTypeExecutionCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"execution_id": executionID,
				"module_id":    moduleID,
				"role_id":      roleID,
				"user_id":      userID,
				"status":       status,
				"elapsed_ms":   elapsedMs,
			},
		},
		ExecutionID:  executionID,
		ModuleID:     moduleID,
		RoleID:       roleID,
		UserID:       userID,
		Status:       status,
		ExitCode:     exitCode,
		ElapsedMs:    elapsedMs,
		ErrorMessage: errorMessage,
		StartedAt:    startedAt,
	}
}
