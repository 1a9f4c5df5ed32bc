package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/auth"
	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/user"
)

// RepositoryAPI returns (nil, nil) for an unknown user.
type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*userDatamodel.User, error)
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	UpdateRole(ctx context.Context, id int64, roleID string) error
}

// RoleLookup returns (nil, nil) for an unknown role.
type RoleLookup interface {
	FindRole(ctx context.Context, id string) (*roleDatamodel.Role, error)
}

type Service struct {
	repo       RepositoryAPI
	roles      RoleLookup
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, roles RoleLookup, bcryptCost int, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		roles:      roles,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load user", "user_id", id, "error", err)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list users", err)
	}
	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		users = append(users, FromDataModel(row))
	}
	return users, nil
}

// Profile returns the current user with their role level.
func (s *Service) Profile(ctx context.Context, identity *internal.Identity) (*Profile, error) {
	u, err := s.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, RoleLevel: identity.RoleLevel}, nil
}

func (s *Service) Create(ctx context.Context, dto *CreateUserDTO) (*User, error) {
	dto.Username = strings.TrimSpace(dto.Username)
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByUsername(ctx, dto.Username)
	if err != nil {
		return nil, internal.NewInternalError("failed to check username", err)
	}
	if existing != nil {
		return nil, internal.ErrUserExists
	}

	if err := s.requireRole(ctx, dto.RoleID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	active := true
	if dto.Active != nil {
		active = *dto.Active
	}
	row := &userDatamodel.User{
		Username:     dto.Username,
		DisplayName:  dto.DisplayName,
		PasswordHash: hash,
		RoleID:       dto.RoleID,
		IsActive:     active,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create user", "username", dto.Username, "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("user created", "user_id", row.ID, "username", row.Username, "role", row.RoleID)
	return FromDataModel(row), nil
}

func (s *Service) ChangeRole(ctx context.Context, id int64, dto *ChangeRoleDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, dto.RoleID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRole(ctx, id, dto.RoleID); err != nil {
		s.logger.Error("failed to change user role", "user_id", id, "error", err)
		return nil, internal.NewInternalError("failed to change user role", err)
	}

	s.logger.Info("user role changed", "user_id", id, "from", u.RoleID, "to", dto.RoleID)
	u.RoleID = dto.RoleID
	return u, nil
}

// LoadIdentity reads the user and their role fresh from the store. Missing
// users and dangling roles are treated as an invalid token.
func (s *Service) LoadIdentity(ctx context.Context, userID int64) (*internal.Identity, error) {
	row, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		s.logger.Warn("token for unknown user", "user_id", userID)
		return nil, internal.ErrInvalidToken
	}
	if !row.IsActive {
		return nil, internal.ErrUserInactive
	}

	role, err := s.roles.FindRole(ctx, row.RoleID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if role == nil {
		s.logger.Error("user references missing role", "user_id", userID, "role", row.RoleID)
		return nil, internal.ErrInvalidToken
	}

	return &internal.Identity{
		UserID:    row.ID,
		Username:  row.Username,
		RoleID:    role.ID,
		RoleLevel: role.Level,
	}, nil
}

func (s *Service) requireRole(ctx context.Context, roleID string) error {
	role, err := s.roles.FindRole(ctx, roleID)
	if err != nil {
		return internal.NewInternalError("failed to load role", err)
	}
	if role == nil {
		return internal.ErrRoleNotFound
	}
	return nil
}
