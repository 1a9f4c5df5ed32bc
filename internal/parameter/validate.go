package parameter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/frahmantamala/scriptdeck/internal"
)

var patternCache sync.Map

func compiled(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Validate coerces raw caller input against defs. Either every definition is
// satisfied and the full ordered result is returned, or the error lists every
// problem found. Names not declared by any definition are dropped.
func Validate(raw map[string]any, defs []Definition) (Values, error) {
	var (
		out  = make(Values, 0, len(defs))
		errs []internal.ValidationError
	)

	for _, def := range defs {
		value, present := raw[def.Name]
		if !present || value == nil {
			switch {
			case def.Required:
				errs = append(errs, internal.ValidationError{
					Field:   def.Name,
					Message: fmt.Sprintf("%s is required", def.Name),
					Code:    string(internal.ErrCodeRequiredParameter),
				})
			case def.Default != nil:
				out = append(out, Value{Name: def.Name, Value: def.Default.Value()})
			}
			continue
		}

		coerced, err := coerce(def, value)
		if err != nil {
			errs = append(errs, internal.ValidationError{
				Field:   def.Name,
				Message: err.Error(),
				Code:    string(internal.ErrCodeInvalidParameter),
			})
			continue
		}

		if def.Type == TypeText && def.Validation != "" {
			re, err := compiled(def.Validation)
			if err != nil {
				errs = append(errs, internal.ValidationError{
					Field:   def.Name,
					Message: fmt.Sprintf("%s has an unusable validation pattern", def.Name),
					Code:    string(internal.ErrCodeInvalidModuleDefinition),
				})
				continue
			}
			if !re.MatchString(coerced.(string)) {
				msg := def.ValidationMessage
				if msg == "" {
					msg = fmt.Sprintf("%s has an invalid format", def.Name)
				}
				errs = append(errs, internal.ValidationError{
					Field:   def.Name,
					Message: msg,
					Code:    string(internal.ErrCodePatternMismatch),
				})
				continue
			}
		}

		out = append(out, Value{Name: def.Name, Value: coerced})
	}

	if len(errs) > 0 {
		return nil, internal.NewValidationError("Parameter validation failed", internal.ErrCodeValidationFailed).
			WithDetails(internal.ValidationErrors{Errors: errs})
	}
	return out, nil
}

func coerce(def Definition, value any) (any, error) {
	switch def.Type {
	case TypeText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be text", def.Name)
		}
		return Sanitize(s), nil
	case TypeNumber:
		n, ok := toNumber(value)
		if !ok {
			return nil, fmt.Errorf("%s must be a number", def.Name)
		}
		return n, nil
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("%s must be true or false", def.Name)
	case TypeList:
		items, err := toList(value)
		if err != nil {
			return nil, fmt.Errorf("%s %s", def.Name, err.Error())
		}
		return items, nil
	}
	return nil, fmt.Errorf("%s has unsupported type %q", def.Name, def.Type)
}

func toNumber(value any) (float64, bool) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int, int8, int16, int32, int64:
		n = float64(reflect.ValueOf(v).Int())
	case uint, uint8, uint16, uint32, uint64:
		n = float64(reflect.ValueOf(v).Uint())
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toList(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = Sanitize(item)
		}
		return out, nil
	case []any:
		return fromElements(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var elems []any
			if err := json.Unmarshal([]byte(trimmed), &elems); err == nil {
				return fromElements(elems)
			}
		}
		out := []string{}
		for _, piece := range strings.Split(v, ",") {
			if piece = Sanitize(piece); piece != "" {
				out = append(out, piece)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("must be a list of text values")
}

func fromElements(elems []any) ([]string, error) {
	out := make([]string, len(elems))
	for i, elem := range elems {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("must contain only text values (item %d)", i+1)
		}
		out[i] = Sanitize(s)
	}
	return out, nil
}
