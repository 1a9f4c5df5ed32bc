// Package catalog loads a YAML description of roles, modules and grants and
// applies it to the registry. Applying the same file twice is a no-op apart
// from refreshing module definitions.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/role"
)

type File struct {
	Roles   []role.CreateRoleDTO     `yaml:"roles"`
	Modules []module.CreateModuleDTO `yaml:"modules"`
	// Grants maps a role id to the module ids it may execute.
	Grants map[string][]string `yaml:"grants"`
}

type ModuleStore interface {
	Get(ctx context.Context, id string) (*module.Module, error)
	Create(ctx context.Context, dto *module.CreateModuleDTO) (*module.Module, error)
	Update(ctx context.Context, id string, dto *module.UpdateModuleDTO) (*module.Module, error)
}

type RoleStore interface {
	Get(ctx context.Context, id string) (*role.Role, error)
	Create(ctx context.Context, dto *role.CreateRoleDTO) (*role.Role, error)
	GrantPermission(ctx context.Context, roleID string, dto *role.GrantPermissionDTO) (*role.Role, error)
}

type Summary struct {
	RolesCreated   int
	ModulesCreated int
	ModulesUpdated int
	Grants         int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse rejects unknown keys so a typo in a parameter definition does not
// silently drop a constraint.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return &f, nil
}

func Apply(ctx context.Context, f *File, modules ModuleStore, roles RoleStore, logger *slog.Logger) (*Summary, error) {
	var sum Summary

	for i := range f.Roles {
		dto := f.Roles[i]
		_, err := roles.Get(ctx, dto.ID)
		switch {
		case err == nil:
			logger.Debug("catalog role already present", "role", dto.ID)
			continue
		case !errors.Is(err, internal.ErrRoleNotFound):
			return &sum, fmt.Errorf("catalog: role %s: %w", dto.ID, err)
		}
		if _, err := roles.Create(ctx, &dto); err != nil {
			return &sum, fmt.Errorf("catalog: create role %s: %w", dto.ID, err)
		}
		sum.RolesCreated++
	}

	for i := range f.Modules {
		dto := f.Modules[i]
		_, err := modules.Get(ctx, dto.ID)
		switch {
		case err == nil:
			if _, err := modules.Update(ctx, dto.ID, updateFrom(&dto)); err != nil {
				return &sum, fmt.Errorf("catalog: update module %s: %w", dto.ID, err)
			}
			sum.ModulesUpdated++
		case errors.Is(err, internal.ErrModuleNotFound):
			if _, err := modules.Create(ctx, &dto); err != nil {
				return &sum, fmt.Errorf("catalog: create module %s: %w", dto.ID, err)
			}
			sum.ModulesCreated++
		default:
			return &sum, fmt.Errorf("catalog: module %s: %w", dto.ID, err)
		}
	}

	roleIDs := make([]string, 0, len(f.Grants))
	for id := range f.Grants {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)
	for _, roleID := range roleIDs {
		for _, moduleID := range f.Grants[roleID] {
			if _, err := roles.GrantPermission(ctx, roleID, &role.GrantPermissionDTO{ModuleID: moduleID}); err != nil {
				return &sum, fmt.Errorf("catalog: grant %s to %s: %w", moduleID, roleID, err)
			}
			sum.Grants++
		}
	}

	logger.Info("catalog applied",
		"roles_created", sum.RolesCreated,
		"modules_created", sum.ModulesCreated,
		"modules_updated", sum.ModulesUpdated,
		"grants", sum.Grants)
	return &sum, nil
}

func updateFrom(dto *module.CreateModuleDTO) *module.UpdateModuleDTO {
	params := dto.Parameters
	return &module.UpdateModuleDTO{
		Name:        &dto.Name,
		Description: &dto.Description,
		Executable:  &dto.Executable,
		Parameters:  &params,
		Enabled:     dto.Enabled,
		TimeoutMs:   &dto.TimeoutMs,
	}
}
