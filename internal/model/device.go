package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// DeviceType marks which validation schema applies to a device record.
//
// This is an append-only enumeration: a retired value must never be reused,
// or historical records would be validated against the wrong schema and
// reported broken when they were fine at the time of insertion.
type DeviceType int

const (
	// TypeUnset means nobody set a type, which is a bug in the caller:
	// validation of an unset device always fails.
	TypeUnset DeviceType = 0
	// TypeUnknown marks intentionally unvalidated legacy data: validation
	// always passes.
	TypeUnknown    DeviceType = 1
	TypeComponent  DeviceType = 2
	TypeSource     DeviceType = 3
	TypeBlank      DeviceType = 4
	TypeAperture   DeviceType = 5
	TypeFlatMirror DeviceType = 6
	TypeKBMirror   DeviceType = 7
	TypeCRL        DeviceType = 8
	TypeCrystal    DeviceType = 9
	TypeGrating    DeviceType = 10
)

func (t DeviceType) String() string {
	switch t {
	case TypeUnset:
		return "Unset"
	case TypeUnknown:
		return "Unknown"
	case TypeComponent:
		return "Component"
	case TypeSource:
		return "Source"
	case TypeBlank:
		return "Blank"
	case TypeAperture:
		return "Aperture"
	case TypeFlatMirror:
		return "Flat Mirror"
	case TypeKBMirror:
		return "KB Mirror"
	case TypeCRL:
		return "CRL"
	case TypeCrystal:
		return "Crystal"
	case TypeGrating:
		return "Grating"
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

// DeviceTypes returns every known device type value.
func DeviceTypes() []DeviceType {
	return []DeviceType{
		TypeUnset, TypeUnknown, TypeComponent, TypeSource, TypeBlank,
		TypeAperture, TypeFlatMirror, TypeKBMirror, TypeCRL, TypeCrystal,
		TypeGrating,
	}
}

// DeviceState is the deployment lifecycle state of a device.
type DeviceState string

const (
	StateConceptual           DeviceState = "Conceptual"
	StatePlanned              DeviceState = "Planned"
	StateReadyForInstallation DeviceState = "ReadyForInstallation"
	StateInstalled            DeviceState = "Installed"
	StateCommissioned         DeviceState = "Commissioned"
	StateOperational          DeviceState = "Operational"
	StateNonOperational       DeviceState = "NonOperational"
	StateDecommissioned       DeviceState = "Decommissioned"
	StateRemoved              DeviceState = "Removed"
)

// DeviceStates returns every device state in sort order.
func DeviceStates() []DeviceState {
	return []DeviceState{
		StateConceptual, StatePlanned, StateReadyForInstallation,
		StateInstalled, StateCommissioned, StateOperational,
		StateNonOperational, StateDecommissioned, StateRemoved,
	}
}

// Well-known device record keys. Everything else in the map is a
// schema-declared attribute of the device's type.
const (
	KeyID         = "id"
	KeyProjectID  = "project_id"
	KeyFC         = "fc"
	KeyDeviceType = "device_type"
	KeyState      = "state"
	KeyCreated    = "created"
	KeyDiscussion = "discussion"
	KeySubdevices = "subdevices"
)

// Device is one immutable version of a device's attributes. Records are
// never mutated in place: every attribute change produces a brand-new
// record with a new id. The fc name, not the id, is the stable identity of
// a device across versions.
type Device map[string]any

func (d Device) ID() string        { s, _ := d[KeyID].(string); return s }
func (d Device) ProjectID() string { s, _ := d[KeyProjectID].(string); return s }
func (d Device) FC() string        { s, _ := d[KeyFC].(string); return s }
func (d Device) State() string     { s, _ := d[KeyState].(string); return s }

// Type returns the device type, false when the field is absent or not a
// number. JSON-decoded records carry float64 values, hence the coercion.
func (d Device) Type() (DeviceType, bool) {
	v, ok := d[KeyDeviceType]
	if !ok {
		return TypeUnset, false
	}
	n, ok := AsInt(v)
	if !ok {
		return TypeUnset, false
	}
	return DeviceType(n), true
}

// Created returns the record timestamp, false when absent.
func (d Device) Created() (time.Time, bool) {
	t, ok := d[KeyCreated].(time.Time)
	return t, ok
}

// Discussion returns the comment thread, newest first. Entries that are
// not comments (possible after a lossy decode) are skipped.
func (d Device) Discussion() []Comment {
	switch v := d[KeyDiscussion].(type) {
	case []Comment:
		return v
	case []any:
		out := make([]Comment, 0, len(v))
		for _, e := range v {
			if c, ok := e.(Comment); ok {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

// Clone returns a deep copy of the device record.
func (d Device) Clone() Device {
	out := make(Device, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Device:
		return val.Clone()
	case map[string]any:
		return Device(val).Clone()
	case []Comment:
		return append([]Comment(nil), val...)
	case []Device:
		out := make([]Device, len(val))
		for i, d := range val {
			out[i] = d.Clone()
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	}
	return v
}

// AsInt coerces a numeric value to int. JSON decoding yields float64 for
// every number, so integer fields read back from a store need this.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// ValuesEqual compares two attribute values, treating numerics of
// different Go types with equal magnitude as equal. This keeps the
// changelog free of spurious entries when a record round-trips through
// JSON (int becomes float64) and is then compared against a fresh update.
func ValuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	// slices and maps (discussion, subdevices) are not comparable with ==
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// EncodeDevice serializes a device record to JSON for storage.
func EncodeDevice(d Device) ([]byte, error) {
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("encoding device %s: %w", d.FC(), err)
	}
	return data, nil
}

// DecodeDevice deserializes a stored device record, restoring the typed
// shape of the structural fields (created, discussion, subdevices,
// device_type). Attribute values keep their JSON types; comparisons go
// through ValuesEqual.
func DecodeDevice(data []byte) (Device, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding device: %w", err)
	}
	d := Device(raw)
	if s, ok := d[KeyCreated].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			d[KeyCreated] = t.UTC()
		}
	}
	if n, ok := AsInt(d[KeyDeviceType]); ok {
		d[KeyDeviceType] = n
	}
	if list, ok := d[KeyDiscussion].([]any); ok {
		d[KeyDiscussion] = decodeComments(list)
	}
	if list, ok := d[KeySubdevices].([]any); ok {
		subs := make([]Device, 0, len(list))
		for _, e := range list {
			if m, ok := e.(map[string]any); ok {
				sub, err := reDecode(m)
				if err != nil {
					return nil, err
				}
				subs = append(subs, sub)
			}
		}
		d[KeySubdevices] = subs
	}
	return d, nil
}

func reDecode(m map[string]any) (Device, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("decoding subdevice: %w", err)
	}
	return DecodeDevice(data)
}

func decodeComments(list []any) []Comment {
	out := make([]Comment, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		var c Comment
		c.ID, _ = m["id"].(string)
		c.Author, _ = m["author"].(string)
		c.Comment, _ = m["comment"].(string)
		if s, ok := m["created"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				c.Created = t.UTC()
			}
		}
		out = append(out, c)
	}
	return out
}
