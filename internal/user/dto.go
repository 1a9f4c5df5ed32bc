package user

import (
	"regexp"

	"github.com/frahmantamala/scriptdeck/internal/core/common/validation"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]{0,63}$`)

type CreateUserDTO struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	RoleID      string `json:"role"`
	Active      *bool  `json:"is_active,omitempty"`
}

func (dto *CreateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("username", dto.Username).
		Required().
		Matches(usernamePattern, "username must start with a letter or digit and use only letters, digits, '.', '_', '@' or '-'")
	v.Field("display_name", dto.DisplayName).MaxLength(128)
	v.Field("password", dto.Password).Required().MinLength(8).MaxLength(72)
	v.Field("role", dto.RoleID).Required().MaxLength(64)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ChangeRoleDTO struct {
	RoleID string `json:"role"`
}

func (dto *ChangeRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("role", dto.RoleID).Required().MaxLength(64)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UsersResponse struct {
	Users []*User `json:"users"`
}
