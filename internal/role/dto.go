package role

import (
	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/core/common/validation"
)

type CreateRoleDTO struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Level       int    `json:"level" yaml:"level"`
}

func (dto *CreateRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("id", dto.ID).
		Required().
		Matches(idPattern, "id must be 1 to 64 letters, digits, '.', '_' or '-'")
	v.Field("description", dto.Description).MaxLength(500)
	v.Field("level", dto.Level).MinInt(1, internal.ErrCodeInvalidRole)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateRoleDTO struct {
	Description *string `json:"description,omitempty"`
	Level       *int    `json:"level,omitempty"`
}

func (dto *UpdateRoleDTO) Validate() error {
	v := validation.NewValidator()
	if dto.Description != nil {
		v.Field("description", *dto.Description).MaxLength(500)
	}
	if dto.Level != nil {
		v.Field("level", *dto.Level).MinInt(1, internal.ErrCodeInvalidRole)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type GrantPermissionDTO struct {
	ModuleID    string `json:"module_id"`
	Description string `json:"description"`
}

func (dto *GrantPermissionDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("module_id", dto.ModuleID).Required().MaxLength(64)
	v.Field("description", dto.Description).MaxLength(500)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RolesResponse struct {
	Roles []*Role `json:"roles"`
}
