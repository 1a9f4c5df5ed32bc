package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	executionDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/execution"
	"github.com/frahmantamala/scriptdeck/internal/execution"
)

type ExecutionRepository struct {
	db *sqlx.DB
}

func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const insertExecution = `
INSERT INTO module_executions
  (id, module_id, role_id, user_id, status, exit_code, elapsed_ms, error_message, started_at)
VALUES
  (:id, :module_id, :role_id, :user_id, :status, :exit_code, :elapsed_ms, :error_message, :started_at)`

func (r *ExecutionRepository) Insert(ctx context.Context, e *executionDatamodel.Execution) error {
	_, err := r.db.NamedExecContext(ctx, insertExecution, e)
	return err
}

func (r *ExecutionRepository) ListRecent(ctx context.Context, filter execution.ListFilter) ([]*executionDatamodel.Execution, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ModuleID != "" {
		where = append(where, "module_id = ?")
		args = append(args, filter.ModuleID)
	}
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := `SELECT id, module_id, role_id, user_id, status, exit_code, elapsed_ms, error_message, started_at
FROM module_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	var rows []*executionDatamodel.Execution
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}
