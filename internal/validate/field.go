package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"confdb/internal/model"
)

// FieldType is the primitive kind of a device attribute.
type FieldType int

const (
	Float FieldType = iota + 1
	Int
	Text
	Date
	Custom
)

func (t FieldType) String() string {
	switch t {
	case Float:
		return "float"
	case Int:
		return "int"
	case Text:
		return "text"
	case Date:
		return "date"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Required determines when a field must be present, as a bit-flag set.
type Required uint8

const (
	// Optional fields may be absent in any state.
	Optional Required = 0
	// Always marks a field required in every device state.
	Always Required = 1 << 0
	// DeviceDeployed marks a field required once the device has left the
	// Conceptual state.
	DeviceDeployed Required = 1 << 1
	// OpticalDataSelected is reserved for ray-trace gated fields; it does
	// not participate in required-field resolution yet.
	OpticalDataSelected Required = 1 << 2
)

// FieldValidator describes a single device attribute: its primitive kind,
// requiredness policy, and optional range / allowed-value / custom checks.
// FieldValidators are immutable and freely shared between device types.
type FieldValidator struct {
	Name    string
	Label   string
	Type    FieldType
	Require Required
	// Convert overrides the default string-or-native conversion for Type.
	Convert func(any) (any, error)
	// Range is a [min, max] pair for numeric fields.
	Range []float64
	// Allowed restricts the converted value to a fixed set.
	Allowed []any
	// Check is a custom validation function; required when Type is Custom.
	Check func(any) string
}

// ConvertValue coerces a raw incoming value (often a string from a form or
// a CSV cell) into the field's native type. Custom fields pass through
// unchanged.
func (f FieldValidator) ConvertValue(value any) (any, error) {
	if f.Type == Custom {
		return value, nil
	}
	convert := f.Convert
	if convert == nil {
		convert = defaultConvert(f.Type)
	}
	return convert(value)
}

// Validate checks a single value against this field's rules and returns an
// error message, or "" when the value is acceptable.
func (f FieldValidator) Validate(value any) string {
	if f.Type == Custom && f.Check == nil {
		return fmt.Sprintf("field %s demands a custom validator, but found none: this is a programming bug", f.Name)
	}
	if f.Check != nil {
		return f.Check(value)
	}

	convert := f.Convert
	if convert == nil {
		convert = defaultConvert(f.Type)
	}
	val, err := convert(value)
	if err != nil {
		return fmt.Sprintf("invalid '%s' value: %v", f.Name, err)
	}

	if len(f.Range) == 2 && (f.Type == Int || f.Type == Float) {
		n, _ := toFloat(val)
		if n < f.Range[0] || n > f.Range[1] {
			return fmt.Sprintf("invalid range of '%s' value: expected value range [%v, %v], but got %v", f.Name, f.Range[0], f.Range[1], val)
		}
	}

	if len(f.Allowed) > 0 {
		found := false
		for _, allowed := range f.Allowed {
			if model.ValuesEqual(val, allowed) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("invalid '%s' value '%v': expected values are %v", f.Name, val, f.Allowed)
		}
	}

	if f.Type == Text && f.Require&Always != 0 {
		if s, _ := val.(string); s == "" {
			return fmt.Sprintf("invalid '%s' value: value can't be empty", f.Name)
		}
	}

	return ""
}

func defaultConvert(t FieldType) func(any) (any, error) {
	switch t {
	case Float:
		return toFloatValue
	case Int:
		return toIntValue
	case Text:
		return toTextValue
	case Date:
		return toDateValue
	}
	return func(any) (any, error) {
		return nil, fmt.Errorf("unhandled field type %s", t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toFloatValue(v any) (any, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("'%v' is not a float", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("'%v' is not a float", v)
}

func toIntValue(v any) (any, error) {
	if n, ok := model.AsInt(v); ok {
		return n, nil
	}
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("'%v' is not an integer", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("'%v' is not an integer", v)
}

func toTextValue(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	}
	return fmt.Sprint(v), nil
}

// dateLayout matches the wire format browsers send for timestamps.
const dateLayout = "2006-01-02T15:04:05.000Z"

func toDateValue(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("'%v' is not a date", v)
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("'%v' is not a date", v)
	}
	return t.UTC(), nil
}

// buildFields indexes a list of field validators by field name. Sharing a
// field between device types is fine since validators are immutable.
func buildFields(validators []FieldValidator) map[string]FieldValidator {
	m := make(map[string]FieldValidator, len(validators))
	for _, v := range validators {
		m[v.Name] = v
	}
	return m
}

// mergeFields unions field sets; later sets override earlier ones on name
// collisions.
func mergeFields(sets ...map[string]FieldValidator) map[string]FieldValidator {
	out := make(map[string]FieldValidator)
	for _, set := range sets {
		for name, v := range set {
			out[name] = v
		}
	}
	return out
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
