package role

import "time"

type Role struct {
	ID          string       `gorm:"column:id;primaryKey;size:64"`
	Description string       `gorm:"column:description"`
	Level       int          `gorm:"column:level;not null;index"`
	BuiltIn     bool         `gorm:"column:built_in;not null"`
	Permissions []Permission `gorm:"foreignKey:RoleID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string {
	return "roles"
}

// Permission grants one module to one role. (role_id, module_id) is unique.
type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	RoleID      string    `gorm:"column:role_id;size:64;not null;uniqueIndex:idx_role_permissions_role_module"`
	ModuleID    string    `gorm:"column:module_id;size:64;not null;uniqueIndex:idx_role_permissions_role_module;index"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string {
	return "role_permissions"
}
