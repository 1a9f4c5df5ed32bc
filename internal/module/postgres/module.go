package postgres

import (
	"context"
	"errors"

	moduleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/module"
	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"gorm.io/gorm"
)

type ModuleRepository struct {
	db *gorm.DB
}

func NewModuleRepository(db *gorm.DB) module.RepositoryAPI {
	return &ModuleRepository{db: db}
}

func (r *ModuleRepository) GetAll(ctx context.Context, includeDisabled bool) ([]*moduleDatamodel.Module, error) {
	var modules []*moduleDatamodel.Module
	q := r.db.WithContext(ctx).Order("name ASC").Order("id ASC")
	if !includeDisabled {
		q = q.Where("enabled = ?", true)
	}
	err := q.Find(&modules).Error
	return modules, err
}

func (r *ModuleRepository) GetByID(ctx context.Context, id string) (*moduleDatamodel.Module, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *ModuleRepository) GetByExecutable(ctx context.Context, executable string) (*moduleDatamodel.Module, error) {
	return r.first(ctx, "executable = ?", executable)
}

func (r *ModuleRepository) first(ctx context.Context, query string, arg interface{}) (*moduleDatamodel.Module, error) {
	var m moduleDatamodel.Module
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *ModuleRepository) Create(ctx context.Context, m *moduleDatamodel.Module) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *ModuleRepository) Update(ctx context.Context, m *moduleDatamodel.Module) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("module_id = ?", id).Delete(&roleDatamodel.Permission{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&moduleDatamodel.Module{}).Error
	})
}
