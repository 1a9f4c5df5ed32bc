package execution

import "time"

// Execution is the audit summary of one gate request. Tagged for both gorm
// (schema) and sqlx (queries).
type Execution struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" db:"id"`
	ModuleID     string    `gorm:"column:module_id;size:64;not null;index" db:"module_id"`
	RoleID       string    `gorm:"column:role_id;size:64;not null" db:"role_id"`
	UserID       int64     `gorm:"column:user_id;not null;index" db:"user_id"`
	Status       string    `gorm:"column:status;size:32;not null" db:"status"`
	ExitCode     *int      `gorm:"column:exit_code" db:"exit_code"`
	ElapsedMs    int64     `gorm:"column:elapsed_ms;not null" db:"elapsed_ms"`
	ErrorMessage string    `gorm:"column:error_message" db:"error_message"`
	StartedAt    time.Time `gorm:"column:started_at;not null;index" db:"started_at"`
}

func (Execution) TableName() string {
	return "module_executions"
}
