package validate_test

import (
	"strings"
	"testing"
	"time"

	"confdb/internal/validate"
)

func TestFieldValidator_ConvertValue(t *testing.T) {
	t.Parallel()
	t.Run("float accepts numbers and numeric strings", func(t *testing.T) {
		f := validate.FieldValidator{Name: "nom_loc_z", Type: validate.Float}

		got, err := f.ConvertValue("120.5")
		if err != nil {
			t.Fatalf("ConvertValue() error = %v", err)
		}
		if got != 120.5 {
			t.Errorf("ConvertValue() = %v, want 120.5", got)
		}

		if _, err := f.ConvertValue("not a number"); err == nil {
			t.Error("ConvertValue() expected error for non-numeric string")
		}
	})

	t.Run("int accepts whole numbers only", func(t *testing.T) {
		f := validate.FieldValidator{Name: "ray_trace", Type: validate.Int}

		got, err := f.ConvertValue(" 1 ")
		if err != nil {
			t.Fatalf("ConvertValue() error = %v", err)
		}
		if got != 1 {
			t.Errorf("ConvertValue() = %v, want 1", got)
		}

		if _, err := f.ConvertValue(1.5); err == nil {
			t.Error("ConvertValue() expected error for a fractional value")
		}
	})

	t.Run("date accepts the browser wire format and RFC3339", func(t *testing.T) {
		f := validate.FieldValidator{Name: "created", Type: validate.Date}

		got, err := f.ConvertValue("2024-03-10T09:30:00.000Z")
		if err != nil {
			t.Fatalf("ConvertValue() error = %v", err)
		}
		want := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
		if !got.(time.Time).Equal(want) {
			t.Errorf("ConvertValue() = %v, want %v", got, want)
		}

		if _, err := f.ConvertValue("10/03/2024"); err == nil {
			t.Error("ConvertValue() expected error for an unsupported layout")
		}
	})

	t.Run("text stringifies non-strings", func(t *testing.T) {
		f := validate.FieldValidator{Name: "stand", Type: validate.Text}

		got, err := f.ConvertValue(12)
		if err != nil {
			t.Fatalf("ConvertValue() error = %v", err)
		}
		if got != "12" {
			t.Errorf("ConvertValue() = %v, want \"12\"", got)
		}
	})
}

func TestFieldValidator_Validate(t *testing.T) {
	t.Parallel()
	t.Run("allowed values restrict the field", func(t *testing.T) {
		f := validate.FieldValidator{Name: "state", Type: validate.Text, Allowed: []any{"Conceptual", "Installed"}}

		if msg := f.Validate("Conceptual"); msg != "" {
			t.Errorf("Validate() = %q, want valid", msg)
		}
		msg := f.Validate("UnderMyDesk")
		if !strings.Contains(msg, "expected values") {
			t.Errorf("Validate() = %q, want allowed-values error", msg)
		}
	})

	t.Run("ranges bound numeric fields", func(t *testing.T) {
		f := validate.FieldValidator{Name: "ray_trace", Type: validate.Int, Range: []float64{0, 1}}

		if msg := f.Validate(1); msg != "" {
			t.Errorf("Validate() = %q, want valid", msg)
		}
		if msg := f.Validate(2); msg == "" {
			t.Error("Validate() accepted an out-of-range value")
		}
	})

	t.Run("required text must not be empty", func(t *testing.T) {
		f := validate.FieldValidator{Name: "fc", Type: validate.Text, Require: validate.Always}

		if msg := f.Validate(""); msg == "" {
			t.Error("Validate() accepted an empty required string")
		}
	})

	t.Run("custom fields need a check function", func(t *testing.T) {
		f := validate.FieldValidator{Name: "odd", Type: validate.Custom}
		msg := f.Validate("anything")
		if !strings.Contains(msg, "programming bug") {
			t.Errorf("Validate() = %q, want programming bug report", msg)
		}
	})
}
