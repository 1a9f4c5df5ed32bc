package module

import (
	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/core/common/validation"
	"github.com/frahmantamala/scriptdeck/internal/parameter"
)

// ModuleResponse is what ordinary callers see: metadata and schema, never the
// executable.
type ModuleResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  []parameter.Definition `json:"parameters"`
}

type ModulesResponse struct {
	Modules []ModuleResponse `json:"modules"`
}

type CreateModuleDTO struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Executable  string                 `json:"executable" yaml:"executable"`
	Parameters  []parameter.Definition `json:"parameters" yaml:"parameters"`
	Enabled     *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	TimeoutMs   int64                  `json:"timeout_ms" yaml:"timeout_ms"`
}

func (dto *CreateModuleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("id", dto.ID).
		Required().
		MaxLength(64).
		Matches(idPattern, "id may contain only lowercase letters, digits and underscores")
	v.Field("name", dto.Name).Required().MaxLength(255)
	v.Field("executable", dto.Executable).
		Required().
		MaxLength(255).
		Custom(executableCheck("executable"))
	v.Field("timeout_ms", dto.TimeoutMs).MinInt(0, internal.ErrCodeValidationFailed)
	v.Field("parameters", dto.Parameters).Custom(definitionsCheck)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateModuleDTO struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Executable  *string                 `json:"executable,omitempty"`
	Parameters  *[]parameter.Definition `json:"parameters,omitempty"`
	Enabled     *bool                   `json:"enabled,omitempty"`
	TimeoutMs   *int64                  `json:"timeout_ms,omitempty"`
}

func (dto *UpdateModuleDTO) Validate() error {
	v := validation.NewValidator()
	if dto.Name != nil {
		v.Field("name", *dto.Name).Required().MaxLength(255)
	}
	if dto.Executable != nil {
		v.Field("executable", *dto.Executable).
			Required().
			MaxLength(255).
			Custom(executableCheck("executable"))
	}
	if dto.TimeoutMs != nil {
		v.Field("timeout_ms", *dto.TimeoutMs).MinInt(0, internal.ErrCodeValidationFailed)
	}
	if dto.Parameters != nil {
		v.Field("parameters", *dto.Parameters).Custom(definitionsCheck)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func executableCheck(field string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		if s, ok := value.(string); ok && s != "" && !ValidExecutable(s) {
			return internal.NewValidationFieldError(field,
				"executable must be a plain file name made of letters, digits, '.', '_' or '-'",
				internal.ErrCodeInvalidModuleDefinition)
		}
		return nil
	}
}

func definitionsCheck(value interface{}) *internal.AppError {
	defs, _ := value.([]parameter.Definition)
	if err := parameter.ValidateDefinitions(defs); err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return appErr
		}
		return internal.NewValidationFieldError("parameters", err.Error(), internal.ErrCodeInvalidModuleDefinition)
	}
	return nil
}
