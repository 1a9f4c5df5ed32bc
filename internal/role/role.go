package role

import (
	"regexp"
	"sort"
	"time"

	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
)

const (
	Admin    = "admin"
	Operator = "operator"
	User     = "user"

	AdminLevel    = 0
	OperatorLevel = 50
	UserLevel     = 100
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type Role struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Level       int          `json:"level"`
	BuiltIn     bool         `json:"built_in"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Permission struct {
	ModuleID    string `json:"module_id"`
	Description string `json:"description"`
}

// BuiltIns are created at startup and can never be deleted or re-levelled.
func BuiltIns() []*Role {
	return []*Role{
		{ID: Admin, Description: "Full access to every module and to administration", Level: AdminLevel, BuiltIn: true},
		{ID: Operator, Description: "Operations staff", Level: OperatorLevel, BuiltIn: true},
		{ID: User, Description: "Default role for new users", Level: UserLevel, BuiltIn: true},
	}
}

func IsBuiltIn(id string) bool {
	switch id {
	case Admin, Operator, User:
		return true
	}
	return false
}

func (r *Role) HasPermission(moduleID string) bool {
	for _, p := range r.Permissions {
		if p.ModuleID == moduleID {
			return true
		}
	}
	return false
}

func ToDataModel(r *Role) *roleDatamodel.Role {
	return &roleDatamodel.Role{
		ID:          r.ID,
		Description: r.Description,
		Level:       r.Level,
		BuiltIn:     r.BuiltIn,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func FromDataModel(r *roleDatamodel.Role) *Role {
	perms := make([]Permission, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, Permission{ModuleID: p.ModuleID, Description: p.Description})
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ModuleID < perms[j].ModuleID })
	return &Role{
		ID:          r.ID,
		Description: r.Description,
		Level:       r.Level,
		BuiltIn:     r.BuiltIn || IsBuiltIn(r.ID),
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
