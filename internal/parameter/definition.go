package parameter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/frahmantamala/scriptdeck/internal"
)

// Type is the declared type of a module parameter.
type Type string

const (
	TypeText    Type = "text"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeList    Type = "list"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeBoolean, TypeList:
		return true
	}
	return false
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Definition describes one input a module accepts.
type Definition struct {
	Name              string   `json:"name" yaml:"name"`
	Description       string   `json:"description,omitempty" yaml:"description"`
	Type              Type     `json:"type" yaml:"type"`
	Required          bool     `json:"required" yaml:"required"`
	Default           *Default `json:"default,omitempty" yaml:"default,omitempty"`
	Validation        string   `json:"validation,omitempty" yaml:"validation,omitempty"`
	ValidationMessage string   `json:"validation_message,omitempty" yaml:"validation_message,omitempty"`
}

// Default is a default value tagged with the parameter type it belongs to.
// Exactly one of the value fields is meaningful, selected by Type.
type Default struct {
	Type   Type
	Text   string
	Number float64
	Bool   bool
	List   []string
}

func TextDefault(s string) *Default      { return &Default{Type: TypeText, Text: s} }
func NumberDefault(n float64) *Default   { return &Default{Type: TypeNumber, Number: n} }
func BoolDefault(b bool) *Default        { return &Default{Type: TypeBoolean, Bool: b} }
func ListDefault(items ...string) *Default {
	if items == nil {
		items = []string{}
	}
	return &Default{Type: TypeList, List: items}
}

// Value returns the default in the same representation the validator
// produces for its type.
func (d *Default) Value() any {
	if d == nil {
		return nil
	}
	switch d.Type {
	case TypeText:
		return d.Text
	case TypeNumber:
		return d.Number
	case TypeBoolean:
		return d.Bool
	case TypeList:
		out := make([]string, len(d.List))
		copy(out, d.List)
		return out
	}
	return nil
}

func (d Default) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Value())
}

func (d *Default) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("parameter: empty default")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*d = Default{Type: TypeText, Text: s}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*d = Default{Type: TypeBoolean, Bool: b}
	case '[':
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("parameter: list default must contain only strings: %w", err)
		}
		*d = Default{Type: TypeList, List: items}
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("parameter: unsupported default %s", string(trimmed))
		}
		*d = Default{Type: TypeNumber, Number: n}
	}
	return nil
}

func (d Default) MarshalYAML() (interface{}, error) {
	return d.Value(), nil
}

func (d *Default) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!str":
			*d = Default{Type: TypeText, Text: node.Value}
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*d = Default{Type: TypeBoolean, Bool: b}
		case "!!int", "!!float":
			n, err := strconv.ParseFloat(node.Value, 64)
			if err != nil {
				return fmt.Errorf("parameter: invalid numeric default %q: %w", node.Value, err)
			}
			*d = Default{Type: TypeNumber, Number: n}
		default:
			return fmt.Errorf("parameter: unsupported default %q (line %d)", node.Value, node.Line)
		}
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("parameter: list default must contain only strings (line %d): %w", node.Line, err)
		}
		if items == nil {
			items = []string{}
		}
		*d = Default{Type: TypeList, List: items}
	default:
		return fmt.Errorf("parameter: unsupported default (line %d)", node.Line)
	}
	return nil
}

// ValidateDefinitions checks a module's parameter schema at definition time.
// Every problem is reported, keyed by the offending parameter.
func ValidateDefinitions(defs []Definition) error {
	var errs []internal.ValidationError
	add := func(field, msg string) {
		errs = append(errs, internal.ValidationError{
			Field:   field,
			Message: msg,
			Code:    string(internal.ErrCodeInvalidModuleDefinition),
		})
	}

	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		field := def.Name
		if field == "" {
			field = fmt.Sprintf("parameters[%d]", i)
		}

		if !namePattern.MatchString(def.Name) {
			add(field, fmt.Sprintf("parameter name %q must start with a letter or digit and contain only letters, digits, '_' or '-'", def.Name))
		} else if seen[def.Name] {
			add(field, fmt.Sprintf("parameter %q is defined more than once", def.Name))
		}
		seen[def.Name] = true

		if !def.Type.Valid() {
			add(field, fmt.Sprintf("parameter %q has unknown type %q", def.Name, def.Type))
			continue
		}

		if def.Required && def.Default != nil {
			add(field, fmt.Sprintf("parameter %q is required and cannot declare a default", def.Name))
		}

		var pattern *regexp.Regexp
		if def.Validation != "" {
			if def.Type != TypeText {
				add(field, fmt.Sprintf("parameter %q: validation patterns apply only to text parameters", def.Name))
			} else if re, err := regexp.Compile(def.Validation); err != nil {
				add(field, fmt.Sprintf("parameter %q has an invalid validation pattern: %v", def.Name, err))
			} else {
				pattern = re
			}
		}

		if def.Default == nil {
			continue
		}
		if def.Default.Type != def.Type {
			add(field, fmt.Sprintf("parameter %q default is %s but the parameter is %s", def.Name, def.Default.Type, def.Type))
			continue
		}
		switch def.Type {
		case TypeText:
			if Sanitize(def.Default.Text) != def.Default.Text {
				add(field, fmt.Sprintf("parameter %q default contains control characters or surrounding whitespace", def.Name))
			} else if pattern != nil && !pattern.MatchString(def.Default.Text) {
				add(field, fmt.Sprintf("parameter %q default does not satisfy its validation pattern", def.Name))
			}
		case TypeNumber:
			if math.IsNaN(def.Default.Number) || math.IsInf(def.Default.Number, 0) {
				add(field, fmt.Sprintf("parameter %q default must be a finite number", def.Name))
			}
		case TypeList:
			for _, item := range def.Default.List {
				if Sanitize(item) != item {
					add(field, fmt.Sprintf("parameter %q default list contains unsanitized items", def.Name))
					break
				}
			}
		}
	}

	if len(errs) > 0 {
		return internal.NewValidationError("Invalid parameter definitions", internal.ErrCodeInvalidModuleDefinition).
			WithDetails(internal.ValidationErrors{Errors: errs})
	}
	return nil
}
