package validate

import (
	"fmt"
	"strings"

	"confdb/internal/model"
)

// Validator binds a device-type name to the set of fields that type may
// carry. It reports every problem it finds, joined into one message, so
// callers can show the user a complete correction list.
type Validator struct {
	Name   string
	Fields map[string]FieldValidator
}

// requiredFields computes the set of field names the device must carry,
// given its current state.
func (v *Validator) requiredFields(device model.Device) map[string]struct{} {
	required := make(map[string]struct{})
	state := device.State()

	for name, field := range v.Fields {
		if field.Require&Always != 0 {
			required[name] = struct{}{}
			continue
		}
		// A device with no state at all gets flagged through the missing
		// "state" requirement, so the deployed check only fires when a
		// state is present.
		if state != "" && field.Require&DeviceDeployed != 0 {
			if state != string(model.StateConceptual) {
				required[name] = struct{}{}
			}
		}
	}
	return required
}

// ValidateDevice checks every field of the device:
//  1. every present field must be declared for this device type,
//  2. every present value must pass its field validator,
//  3. every required field must be present.
//
// All errors are collected and newline-joined; "" means valid.
func (v *Validator) ValidateDevice(device model.Device) string {
	if device == nil {
		return "invalid device data: expected an attribute map, but got nothing"
	}

	required := v.requiredFields(device)

	var errs []string
	for name, value := range device {
		// Discharge the requirement so we know what was missing at the end.
		delete(required, name)

		if err := v.ValidateField(name, value); err != "" {
			errs = append(errs, err)
		}
	}

	if len(required) != 0 {
		errs = append(errs, fmt.Sprintf("invalid device data: missing required fields: %v", sortedNames(required)))
	}

	if len(errs) > 0 {
		return strings.Join(errs, "\n")
	}
	return ""
}

// ValidateField checks one field value. A field not declared for this
// device type is itself an error.
func (v *Validator) ValidateField(name string, value any) string {
	field, ok := v.Fields[name]
	if !ok {
		return fmt.Sprintf("%s device does not contain field '%s'", v.Name, name)
	}
	return field.Validate(value)
}

// deviceChecker is the dispatch surface the registry stores per device
// type. The sentinels implement it without any field schema.
type deviceChecker interface {
	ValidateDevice(device model.Device) string
}

// unsetChecker always fails: a stored device without an explicit type is a
// caller bug, not legacy data.
type unsetChecker struct{}

func (unsetChecker) ValidateDevice(model.Device) string {
	return fmt.Sprintf("invalid device type %s (unset device): you have probably forgot to set a valid device type", model.TypeUnset)
}

// noopChecker always passes; it backs the Unknown type for intentionally
// unvalidated legacy data.
type noopChecker struct{}

func (noopChecker) ValidateDevice(model.Device) string { return "" }
