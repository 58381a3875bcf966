package validate

import (
	"fmt"
	"math"
	"strings"

	"confdb/internal/model"
)

// The registry maps each device type to its validator. It is built once at
// startup and never mutated afterwards; a device type without an entry is
// a hard validation failure, not something silently accepted.
var registry map[model.DeviceType]deviceChecker

func init() {
	registry = map[model.DeviceType]deviceChecker{
		model.TypeUnset:      unsetChecker{},
		model.TypeUnknown:    noopChecker{},
		model.TypeComponent:  componentValidator,
		model.TypeFlatMirror: flatMirrorValidator,
		model.TypeKBMirror:   kbMirrorValidator,
		model.TypeAperture:   apertureValidator,
	}
}

// Device validates a full device record against the schema of its declared
// type. Returns a newline-joined list of every problem, or "" when valid.
func Device(device model.Device) string {
	rawType, ok := device[model.KeyDeviceType]
	if !ok {
		return "provided device does not have a required 'device_type' field"
	}
	deviceType, ok := device.Type()
	if !ok {
		return fmt.Sprintf("invalid 'device_type' value '%v': expected an integer type code", rawType)
	}
	checker, ok := registry[deviceType]
	if !ok {
		return fmt.Sprintf("can't validate provided device: device_type value '%d' does not have an implemented validator", int(deviceType))
	}
	return checker.ValidateDevice(device)
}

// DeviceError pairs a device with the validation message it produced.
type DeviceError struct {
	Device model.Device
	Error  string
}

// Result partitions a batch of devices into valid and invalid ones.
type Result struct {
	OK     []model.Device
	Errors []DeviceError
}

// Devices validates a batch of project devices, e.g. on import or when a
// project is submitted for approval.
func Devices(devices []model.Device) Result {
	var result Result
	for _, device := range devices {
		if err := Device(device); err != "" {
			result.Errors = append(result.Errors, DeviceError{Device: device, Error: err})
			continue
		}
		result.OK = append(result.OK, device)
	}
	return result
}

// ---------------------------------------------------------------------------
// nested schemas

// discussionValidator is the fixed sub-schema for one discussion entry.
var discussionValidator = &Validator{Name: "Discussion", Fields: buildFields([]FieldValidator{
	{Name: "id", Label: "id", Type: Text, Require: Always},
	{Name: "author", Label: "Author", Type: Text, Require: Always},
	{Name: "created", Label: "Created", Type: Date, Require: Always},
	{Name: "comment", Label: "Comment", Type: Text, Require: Always},
})}

func validateDiscussion(value any) string {
	switch list := value.(type) {
	case nil:
		return ""
	case []model.Comment:
		var errs []string
		for i, c := range list {
			entry := model.Device{"id": c.ID, "author": c.Author, "comment": c.Comment, "created": c.Created}
			if c.Created.IsZero() {
				delete(entry, "created")
			}
			if err := discussionValidator.ValidateDevice(entry); err != "" {
				errs = append(errs, fmt.Sprintf("failed to validate an element[%d]: %s", i, err))
			}
		}
		return joinFieldErrors("discussion", errs)
	case []any:
		var errs []string
		for i, e := range list {
			entry, ok := e.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("invalid element[%d] type: expected an attribute map, but got (%v)", i, e))
				continue
			}
			if err := discussionValidator.ValidateDevice(model.Device(entry)); err != "" {
				errs = append(errs, fmt.Sprintf("failed to validate an element[%d]: %s", i, err))
			}
		}
		return joinFieldErrors("discussion", errs)
	}
	return fmt.Sprintf("invalid 'discussion' field: expected a list, but got %T", value)
}

// validateSubdevices validates nested devices as full devices, each against
// its own declared type.
func validateSubdevices(value any) string {
	switch list := value.(type) {
	case nil:
		return ""
	case []model.Device:
		var errs []string
		for i, sub := range list {
			if err := Device(sub); err != "" {
				errs = append(errs, fmt.Sprintf("failed to validate an element[%d]: %s", i, err))
			}
		}
		return joinFieldErrors("subdevices", errs)
	case []any:
		var errs []string
		for i, e := range list {
			entry, ok := e.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("invalid element[%d] type: expected an attribute map, but got (%v)", i, e))
				continue
			}
			if err := Device(model.Device(entry)); err != "" {
				errs = append(errs, fmt.Sprintf("failed to validate an element[%d]: %s", i, err))
			}
		}
		return joinFieldErrors("subdevices", errs)
	}
	return fmt.Sprintf("invalid 'subdevices' field: expected a list, but got %T", value)
}

func joinFieldErrors(field string, errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return fmt.Sprintf("failed to validate '%s' field: %s", field, strings.Join(errs, "\n"))
}

// ---------------------------------------------------------------------------
// field sets

func deviceTypeValues() []any {
	types := model.DeviceTypes()
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = int(t)
	}
	return out
}

func deviceStateValues() []any {
	states := model.DeviceStates()
	out := make([]any, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// CommonFields is the base field set every stored device record carries,
// regardless of its type. Copy operations refuse to touch these.
var CommonFields = buildFields([]FieldValidator{
	{Name: model.KeyID, Label: "ID", Type: Text},
	{Name: model.KeyProjectID, Label: "Project ID", Type: Text},
	{Name: model.KeyDeviceType, Label: "Device Type", Type: Int, Require: Always, Allowed: deviceTypeValues()},
	{Name: model.KeyCreated, Label: "Created", Type: Date, Require: Always},
	{Name: model.KeyDiscussion, Label: "Discussion", Type: Custom, Check: validateDiscussion},
	{Name: model.KeySubdevices, Label: "Subdevices", Type: Custom, Check: validateSubdevices},
})

var componentValidator = &Validator{Name: "Component", Fields: mergeFields(CommonFields, buildFields([]FieldValidator{
	{Name: model.KeyFC, Label: "FC", Type: Text, Require: Always},
	{Name: "fg", Label: "FG", Type: Text},
	{Name: "tc_part_no", Label: "TC Part No.", Type: Text},
	{Name: model.KeyState, Label: "State", Type: Text, Require: Always, Allowed: deviceStateValues()},
	{Name: "stand", Label: "Stand/Nearest Stand", Type: Text},
	{Name: "comment", Label: "Comment", Type: Text},

	{Name: "nom_loc_x", Label: "Nom Loc X", Type: Float, Require: DeviceDeployed},
	{Name: "nom_loc_y", Label: "Nom Loc Y", Type: Float, Require: DeviceDeployed},
	{Name: "nom_loc_z", Label: "Nom Loc Z", Type: Float, Require: DeviceDeployed, Range: []float64{0, 2000}},

	{Name: "nom_ang_x", Label: "Nom Ang X", Type: Float, Require: DeviceDeployed, Range: []float64{-math.Pi, math.Pi}},
	{Name: "nom_ang_y", Label: "Nom Ang Y", Type: Float, Require: DeviceDeployed, Range: []float64{-math.Pi, math.Pi}},
	{Name: "nom_ang_z", Label: "Nom Ang Z", Type: Float, Require: DeviceDeployed, Range: []float64{-math.Pi, math.Pi}},

	{Name: "ray_trace", Label: "Ray Trace", Type: Int, Range: []float64{0, 1}},
}))}

var mirrorGeometryFields = buildFields([]FieldValidator{
	{Name: "geom_len", Label: "Geometry Length", Type: Float},
	{Name: "geom_width", Label: "Geometry Width", Type: Float},
	{Name: "thickness", Label: "Thickness", Type: Float},
	{Name: "geom_center_x", Label: "Geometry Center X", Type: Float},
	{Name: "geom_center_y", Label: "Geometry Center Y", Type: Float},
	{Name: "geom_center_z", Label: "Geometry Center Z", Type: Float},
})

var mirrorMotionFields = buildFields([]FieldValidator{
	{Name: "motion_min_x", Label: "Motion Min X", Type: Float},
	{Name: "motion_max_x", Label: "Motion Max X", Type: Float},
	{Name: "motion_min_y", Label: "Motion Min Y", Type: Float},
	{Name: "motion_max_y", Label: "Motion Max Y", Type: Float},
	{Name: "motion_min_z", Label: "Motion Min Z", Type: Float},
	{Name: "motion_max_z", Label: "Motion Max Z", Type: Float},

	{Name: "motion_min_pitch", Label: "Motion Min Pitch", Type: Float},
	{Name: "motion_max_pitch", Label: "Motion Max Pitch", Type: Float},
	{Name: "motion_min_roll", Label: "Motion Min Roll", Type: Float},
	{Name: "motion_max_roll", Label: "Motion Max Roll", Type: Float},
	{Name: "motion_min_yaw", Label: "Motion Min Yaw", Type: Float},
	{Name: "motion_max_yaw", Label: "Motion Max Yaw", Type: Float},
})

var mirrorToleranceFields = buildFields([]FieldValidator{
	{Name: "tolerance_x", Label: "Tolerance X", Type: Float},
	{Name: "tolerance_y", Label: "Tolerance Y", Type: Float},
	{Name: "tolerance_z", Label: "Tolerance Z", Type: Float},
})

var flatMirrorValidator = &Validator{Name: "Flat Mirror", Fields: mergeFields(
	componentValidator.Fields, mirrorGeometryFields, mirrorMotionFields, mirrorToleranceFields,
)}

var kbMirrorValidator = &Validator{Name: "KB Mirror", Fields: mergeFields(
	componentValidator.Fields, mirrorGeometryFields, mirrorMotionFields, mirrorToleranceFields,
	buildFields([]FieldValidator{
		{Name: "focus_min_p", Label: "Focus Min P", Type: Float},
		{Name: "focus_max_p", Label: "Focus Max P", Type: Float},
		{Name: "focus_min_q", Label: "Focus Min Q", Type: Float},
		{Name: "focus_max_q", Label: "Focus Max Q", Type: Float},
		{Name: "focus_theta", Label: "Focus Theta", Type: Float},
	}),
)}

var apertureValidator = &Validator{Name: "Aperture", Fields: mergeFields(
	componentValidator.Fields, mirrorGeometryFields, mirrorMotionFields,
)}

// KnownFields returns the union of every registered device type's field
// schema. Partial updates consult this flat table: an attribute missing
// from it is silently skipped rather than rejected.
func KnownFields() map[string]FieldValidator {
	out := make(map[string]FieldValidator)
	for _, checker := range registry {
		v, ok := checker.(*Validator)
		if !ok {
			continue
		}
		for name, f := range v.Fields {
			out[name] = f
		}
	}
	return out
}

// FieldsFor returns the declared field schema for a device type, or nil
// when the type has no registered validator (or is a sentinel). Partial
// updates use this to decide which incoming attributes are known.
func FieldsFor(deviceType model.DeviceType) map[string]FieldValidator {
	checker, ok := registry[deviceType]
	if !ok {
		return nil
	}
	v, ok := checker.(*Validator)
	if !ok {
		return nil
	}
	return v.Fields
}
