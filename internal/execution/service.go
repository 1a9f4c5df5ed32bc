package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/scriptdeck/internal"
	executionDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/execution"
	"github.com/frahmantamala/scriptdeck/internal/core/events"
)

type RepositoryAPI interface {
	Insert(ctx context.Context, e *executionDatamodel.Execution) error
	ListRecent(ctx context.Context, filter ListFilter) ([]*executionDatamodel.Execution, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Subscribe registers the recorder for completed executions.
func (s *Service) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeExecutionCompleted, s.HandleExecutionCompleted)
}

func (s *Service) HandleExecutionCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.ExecutionCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	if err := s.repo.Insert(ctx, FromEvent(completed)); err != nil {
		return fmt.Errorf("record execution %s: %w", completed.ExecutionID, err)
	}

	s.logger.Debug("execution recorded",
		"execution_id", completed.ExecutionID,
		"module", completed.ModuleID,
		"status", completed.Status)
	return nil
}

func (s *Service) ListRecent(ctx context.Context, filter ListFilter) ([]*Record, error) {
	rows, err := s.repo.ListRecent(ctx, filter.normalized())
	if err != nil {
		s.logger.Error("failed to list executions", "error", err)
		return nil, internal.NewInternalError("failed to list executions", err)
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, FromDataModel(row))
	}
	return records, nil
}
