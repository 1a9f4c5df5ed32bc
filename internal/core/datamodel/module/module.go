package module

import (
	"time"

	"github.com/frahmantamala/scriptdeck/internal/parameter"
)

type Module struct {
	ID          string                 `gorm:"column:id;primaryKey;size:64"`
	Name        string                 `gorm:"column:name;not null"`
	Description string                 `gorm:"column:description"`
	Executable  string                 `gorm:"column:executable;not null;uniqueIndex"`
	Parameters  []parameter.Definition `gorm:"column:parameters;serializer:json;not null"`
	Enabled     bool                   `gorm:"column:enabled;not null"`
	TimeoutMs   int64                  `gorm:"column:timeout_ms;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Module) TableName() string {
	return "modules"
}
