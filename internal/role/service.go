package role

import (
	"context"
	"log/slog"
	"sort"

	"github.com/frahmantamala/scriptdeck/internal"
	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
	"github.com/frahmantamala/scriptdeck/internal/module"
)

// RepositoryAPI returns (nil, nil) from GetByID for an unknown role. Roles
// come back with their permissions loaded.
type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*roleDatamodel.Role, error)
	GetByID(ctx context.Context, id string) (*roleDatamodel.Role, error)
	Create(ctx context.Context, r *roleDatamodel.Role) error
	Update(ctx context.Context, r *roleDatamodel.Role) error
	Delete(ctx context.Context, id string) error
	UpsertPermission(ctx context.Context, p *roleDatamodel.Permission) error
	DeletePermission(ctx context.Context, roleID, moduleID string) (bool, error)
	CountUsers(ctx context.Context, roleID string) (int64, error)
}

// ModuleLookup resolves a module regardless of its enabled flag.
type ModuleLookup interface {
	Get(ctx context.Context, id string) (*module.Module, error)
}

type Invalidator interface {
	Invalidate()
}

type Service struct {
	repo        RepositoryAPI
	modules     ModuleLookup
	invalidator Invalidator
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, modules ModuleLookup, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		modules:     modules,
		invalidator: invalidator,
		logger:      logger,
	}
}

// List returns every role, most privileged first.
func (s *Service) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		return nil, internal.NewInternalError("failed to list roles", err)
	}
	roles := make([]*Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, FromDataModel(row))
	}
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Level != roles[j].Level {
			return roles[i].Level < roles[j].Level
		}
		return roles[i].ID < roles[j].ID
	})
	return roles, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Role, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load role", "role", id, "error", err)
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if row == nil {
		s.logger.Warn("role not found", "role", id)
		return nil, internal.ErrRoleNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto *CreateRoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, dto.ID)
	if err != nil {
		return nil, internal.NewInternalError("failed to check role", err)
	}
	if existing != nil {
		return nil, internal.ErrRoleExists
	}

	row := &roleDatamodel.Role{ID: dto.ID, Description: dto.Description, Level: dto.Level}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create role", "role", dto.ID, "error", err)
		return nil, internal.NewInternalError("failed to create role", err)
	}

	s.invalidate()
	s.logger.Info("role created", "role", row.ID, "level", row.Level)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id string, dto *UpdateRoleDTO) (*Role, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Level != nil && *dto.Level == r.Level {
		dto.Level = nil
	}
	if r.BuiltIn && dto.Level != nil {
		s.logger.Warn("refusing to re-level built-in role", "role", id, "requested_level", *dto.Level)
		return nil, internal.ErrBuiltInRole
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if dto.Description != nil {
		r.Description = *dto.Description
	}
	if dto.Level != nil {
		r.Level = *dto.Level
	}

	row := ToDataModel(r)
	if err := s.repo.Update(ctx, row); err != nil {
		s.logger.Error("failed to update role", "role", id, "error", err)
		return nil, internal.NewInternalError("failed to update role", err)
	}

	s.invalidate()
	s.logger.Info("role updated", "role", r.ID, "level", r.Level)
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.BuiltIn {
		s.logger.Warn("refusing to delete built-in role", "role", id)
		return internal.ErrBuiltInRole
	}

	users, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to check role usage", err)
	}
	if users > 0 {
		s.logger.Warn("refusing to delete role in use", "role", id, "users", users)
		return internal.ErrRoleInUse
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete role", "role", id, "error", err)
		return internal.NewInternalError("failed to delete role", err)
	}

	s.invalidate()
	s.logger.Info("role deleted", "role", id)
	return nil
}

// GrantPermission is idempotent: granting the same module twice leaves one
// permission, with the latest description.
func (s *Service) GrantPermission(ctx context.Context, roleID string, dto *GrantPermissionDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, roleID); err != nil {
		return nil, err
	}

	m, err := s.modules.Get(ctx, dto.ModuleID)
	if err != nil {
		return nil, err
	}

	err = s.repo.UpsertPermission(ctx, &roleDatamodel.Permission{
		RoleID:      roleID,
		ModuleID:    m.ID,
		Description: dto.Description,
	})
	if err != nil {
		s.logger.Error("failed to grant permission", "role", roleID, "module", m.ID, "error", err)
		return nil, internal.NewInternalError("failed to grant permission", err)
	}

	s.invalidate()
	s.logger.Info("permission granted", "role", roleID, "module", m.ID)
	return s.Get(ctx, roleID)
}

// RevokePermission succeeds whether or not the grant existed.
func (s *Service) RevokePermission(ctx context.Context, roleID, moduleID string) (*Role, error) {
	if _, err := s.Get(ctx, roleID); err != nil {
		return nil, err
	}

	normalized := module.NormalizeID(moduleID)
	removed, err := s.repo.DeletePermission(ctx, roleID, normalized)
	if err != nil {
		s.logger.Error("failed to revoke permission", "role", roleID, "module", normalized, "error", err)
		return nil, internal.NewInternalError("failed to revoke permission", err)
	}

	s.invalidate()
	s.logger.Info("permission revoked", "role", roleID, "module", normalized, "removed", removed)
	return s.Get(ctx, roleID)
}

// EnsureBuiltIns creates any missing built-in role and restores a built-in
// level that was changed behind the service's back.
func (s *Service) EnsureBuiltIns(ctx context.Context) error {
	for _, builtin := range BuiltIns() {
		row, err := s.repo.GetByID(ctx, builtin.ID)
		if err != nil {
			return internal.NewInternalError("failed to load built-in role", err)
		}
		switch {
		case row == nil:
			if err := s.repo.Create(ctx, ToDataModel(builtin)); err != nil {
				return internal.NewInternalError("failed to create built-in role", err)
			}
			s.logger.Info("built-in role created", "role", builtin.ID, "level", builtin.Level)
		case row.Level != builtin.Level || !row.BuiltIn:
			row.Level = builtin.Level
			row.BuiltIn = true
			if err := s.repo.Update(ctx, row); err != nil {
				return internal.NewInternalError("failed to restore built-in role", err)
			}
			s.logger.Warn("built-in role restored", "role", builtin.ID, "level", builtin.Level)
		}
	}
	s.invalidate()
	return nil
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}
