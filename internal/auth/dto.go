package auth

import (
	"github.com/frahmantamala/scriptdeck/internal/core/common/validation"
)

type LoginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (dto *LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("username", dto.Username).Required().MaxLength(64)
	v.Field("password", dto.Password).Required().MaxLength(72)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (dto *RefreshTokenDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("refresh_token", dto.RefreshToken).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
