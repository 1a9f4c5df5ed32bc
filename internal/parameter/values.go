package parameter

import (
	"bytes"
	"encoding/json"
)

// Value is one validated parameter. Value holds string, float64, bool or
// []string depending on the parameter type.
type Value struct {
	Name  string
	Value any
}

// Values is the ordered result of validation; order follows the definitions.
type Values []Value

func (v Values) Get(name string) (any, bool) {
	for _, item := range v {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}

// Map returns the values keyed by name, suitable for re-validation.
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v))
	for _, item := range v {
		out[item.Name] = item.Value
	}
	return out
}

func (v Values) Names() []string {
	names := make([]string, len(v))
	for i, item := range v {
		names[i] = item.Name
	}
	return names
}

// MarshalJSON writes an object whose keys keep definition order.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
