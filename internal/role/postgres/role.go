package postgres

import (
	"context"
	"errors"

	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/user"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleRepository backs both the role service and the permission resolver.
type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetAll(ctx context.Context) ([]*roleDatamodel.Role, error) {
	var roles []*roleDatamodel.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Order("level ASC").Order("id ASC").Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (*roleDatamodel.Role, error) {
	var role roleDatamodel.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Where("id = ?", id).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// GetFromLevel returns every role whose level is at or above level, that is
// the role at that level and every less privileged one.
func (r *RoleRepository) GetFromLevel(ctx context.Context, level int) ([]*roleDatamodel.Role, error) {
	var roles []*roleDatamodel.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Where("level >= ?", level).Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) FindRole(ctx context.Context, id string) (*roleDatamodel.Role, error) {
	var role roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *RoleRepository) FindRolesFromLevel(ctx context.Context, level int) ([]*roleDatamodel.Role, error) {
	return r.GetFromLevel(ctx, level)
}

func (r *RoleRepository) Create(ctx context.Context, role *roleDatamodel.Role) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(role).Error
}

func (r *RoleRepository) Update(ctx context.Context, role *roleDatamodel.Role) error {
	return r.db.WithContext(ctx).Model(&roleDatamodel.Role{}).Where("id = ?", role.ID).Updates(map[string]interface{}{
		"description": role.Description,
		"level":       role.Level,
		"built_in":    role.BuiltIn,
	}).Error
}

func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&roleDatamodel.Permission{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&roleDatamodel.Role{}).Error
	})
}

// UpsertPermission relies on the unique (role_id, module_id) index so a
// repeated grant only refreshes the description.
func (r *RoleRepository) UpsertPermission(ctx context.Context, p *roleDatamodel.Permission) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"description"}),
	}).Create(p).Error
}

func (r *RoleRepository) DeletePermission(ctx context.Context, roleID, moduleID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("role_id = ? AND module_id = ?", roleID, moduleID).Delete(&roleDatamodel.Permission{})
	return res.RowsAffected > 0, res.Error
}

func (r *RoleRepository) CountUsers(ctx context.Context, roleID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("role_id = ?", roleID).Count(&count).Error
	return count, err
}
