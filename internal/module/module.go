package module

import (
	"regexp"
	"strings"
	"time"

	moduleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/module"
	"github.com/frahmantamala/scriptdeck/internal/parameter"
)

var (
	idPattern         = regexp.MustCompile(`^[a-z0-9_]+$`)
	idStrip           = regexp.MustCompile(`[^a-z0-9_]`)
	executablePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

type Module struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Executable  string                 `json:"executable"`
	Parameters  []parameter.Definition `json:"parameters"`
	Enabled     bool                   `json:"enabled"`
	TimeoutMs   int64                  `json:"timeout_ms"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NormalizeID trims, lower-cases and strips everything outside [a-z0-9_].
func NormalizeID(id string) string {
	return idStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(id)), "")
}

func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func ValidExecutable(name string) bool {
	return executablePattern.MatchString(name) && name != "." && name != ".."
}

// Timeout returns the module's own bound, or fallback when it has none,
// never exceeding max.
func (m *Module) Timeout(fallback, max time.Duration) time.Duration {
	t := fallback
	if m.TimeoutMs > 0 {
		t = time.Duration(m.TimeoutMs) * time.Millisecond
	}
	if max > 0 && t > max {
		t = max
	}
	return t
}

func (m *Module) ToResponse() ModuleResponse {
	params := m.Parameters
	if params == nil {
		params = []parameter.Definition{}
	}
	return ModuleResponse{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Parameters:  params,
	}
}

func ToDataModel(m *Module) *moduleDatamodel.Module {
	return &moduleDatamodel.Module{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Executable:  m.Executable,
		Parameters:  m.Parameters,
		Enabled:     m.Enabled,
		TimeoutMs:   m.TimeoutMs,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func FromDataModel(m *moduleDatamodel.Module) *Module {
	return &Module{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Executable:  m.Executable,
		Parameters:  m.Parameters,
		Enabled:     m.Enabled,
		TimeoutMs:   m.TimeoutMs,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
