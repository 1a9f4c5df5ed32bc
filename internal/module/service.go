package module

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/frahmantamala/scriptdeck/internal"
	moduleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/module"
)

// RepositoryAPI returns (nil, nil) from the single-record getters when
// nothing matches.
type RepositoryAPI interface {
	GetAll(ctx context.Context, includeDisabled bool) ([]*moduleDatamodel.Module, error)
	GetByID(ctx context.Context, id string) (*moduleDatamodel.Module, error)
	GetByExecutable(ctx context.Context, executable string) (*moduleDatamodel.Module, error)
	Create(ctx context.Context, m *moduleDatamodel.Module) error
	Update(ctx context.Context, m *moduleDatamodel.Module) error
	// Delete removes the module and every role permission naming it.
	Delete(ctx context.Context, id string) error
}

// Invalidator is told about every catalog change so cached permission sets
// never outlive the modules they name.
type Invalidator interface {
	Invalidate()
}

type Service struct {
	repo        RepositoryAPI
	invalidator Invalidator
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
	}
}

// ListEnabled returns every enabled module ordered by display name.
func (s *Service) ListEnabled(ctx context.Context) ([]*Module, error) {
	return s.list(ctx, false)
}

// ListAll includes disabled modules, for administration.
func (s *Service) ListAll(ctx context.Context) ([]*Module, error) {
	return s.list(ctx, true)
}

func (s *Service) list(ctx context.Context, includeDisabled bool) ([]*Module, error) {
	rows, err := s.repo.GetAll(ctx, includeDisabled)
	if err != nil {
		s.logger.Error("failed to list modules", "error", err)
		return nil, internal.NewInternalError("failed to list modules", err)
	}

	modules := make([]*Module, 0, len(rows))
	for _, row := range rows {
		if !includeDisabled && !row.Enabled {
			continue
		}
		modules = append(modules, FromDataModel(row))
	}
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Name != modules[j].Name {
			return modules[i].Name < modules[j].Name
		}
		return modules[i].ID < modules[j].ID
	})
	return modules, nil
}

// GetByID looks up an enabled module. A disabled module is reported exactly
// like a missing one.
func (s *Service) GetByID(ctx context.Context, id string) (*Module, error) {
	m, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		s.logger.Warn("module is disabled", "module", m.ID)
		return nil, internal.ErrModuleNotFound
	}
	return m, nil
}

// Get returns the module whether or not it is enabled.
func (s *Service) Get(ctx context.Context, id string) (*Module, error) {
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*Module, error) {
	normalized := NormalizeID(id)
	if normalized != id {
		s.logger.Warn("module id was normalized before lookup", "requested", id, "normalized", normalized)
	}
	if normalized == "" {
		return nil, internal.ErrModuleNotFound
	}

	row, err := s.repo.GetByID(ctx, normalized)
	if err != nil {
		s.logger.Error("failed to load module", "module", normalized, "error", err)
		return nil, internal.NewInternalError("failed to load module", err)
	}
	if row == nil {
		s.logger.Warn("module not found", "module", normalized)
		return nil, internal.ErrModuleNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto *CreateModuleDTO) (*Module, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, dto.ID)
	if err != nil {
		return nil, internal.NewInternalError("failed to check module", err)
	}
	if existing != nil {
		return nil, internal.ErrModuleExists
	}
	if err := s.ensureExecutableFree(ctx, dto.Executable, ""); err != nil {
		return nil, err
	}

	enabled := true
	if dto.Enabled != nil {
		enabled = *dto.Enabled
	}
	m := &Module{
		ID:          dto.ID,
		Name:        dto.Name,
		Description: dto.Description,
		Executable:  dto.Executable,
		Parameters:  dto.Parameters,
		Enabled:     enabled,
		TimeoutMs:   dto.TimeoutMs,
	}
	row := ToDataModel(m)
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create module", "module", m.ID, "error", err)
		return nil, internal.NewInternalError("failed to create module", err)
	}

	s.invalidate()
	s.logger.Info("module created", "module", m.ID, "executable", m.Executable, "enabled", m.Enabled)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id string, dto *UpdateModuleDTO) (*Module, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	m, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		m.Name = *dto.Name
	}
	if dto.Description != nil {
		m.Description = *dto.Description
	}
	if dto.Executable != nil && *dto.Executable != m.Executable {
		if err := s.ensureExecutableFree(ctx, *dto.Executable, m.ID); err != nil {
			return nil, err
		}
		m.Executable = *dto.Executable
	}
	if dto.Parameters != nil {
		m.Parameters = *dto.Parameters
	}
	if dto.Enabled != nil {
		m.Enabled = *dto.Enabled
	}
	if dto.TimeoutMs != nil {
		m.TimeoutMs = *dto.TimeoutMs
	}

	row := ToDataModel(m)
	if err := s.repo.Update(ctx, row); err != nil {
		s.logger.Error("failed to update module", "module", m.ID, "error", err)
		return nil, internal.NewInternalError("failed to update module", err)
	}

	s.invalidate()
	s.logger.Info("module updated", "module", m.ID, "enabled", m.Enabled)
	return FromDataModel(row), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, m.ID); err != nil {
		s.logger.Error("failed to delete module", "module", m.ID, "error", err)
		return internal.NewInternalError("failed to delete module", err)
	}

	s.invalidate()
	s.logger.Info("module deleted", "module", m.ID)
	return nil
}

// ensureExecutableFree refuses to bind one executable to two modules.
func (s *Service) ensureExecutableFree(ctx context.Context, executable, ownerID string) error {
	other, err := s.repo.GetByExecutable(ctx, executable)
	if err != nil {
		return internal.NewInternalError("failed to check executable", err)
	}
	if other != nil && other.ID != ownerID {
		return internal.ErrScriptAlreadyBound.WithDetails(internal.ValidationErrors{Errors: []internal.ValidationError{{
			Field:   "executable",
			Message: fmt.Sprintf("%s is already used by module %s", executable, other.ID),
			Code:    string(internal.ErrCodeScriptAlreadyBound),
		}}})
	}
	return nil
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}
