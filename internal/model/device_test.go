package model_test

import (
	"testing"
	"time"

	"confdb/internal/model"
)

func TestValuesEqual(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"equal strings", "B-12", "B-12", true},
		{"different strings", "B-12", "B-13", false},
		{"int against float64", 2, 2.0, true},
		{"int64 against int", int64(7), 7, true},
		{"different magnitude", 2, 2.5, false},
		{"equal times", now, now.In(time.FixedZone("PST", -8*3600)), true},
		{"time against string", now, now.Format(time.RFC3339), false},
		{"equal string slices", []string{"a"}, []string{"a"}, true},
		{"different slices", []string{"a"}, []string{"b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := model.ValuesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("ValuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDevice_Clone(t *testing.T) {
	t.Parallel()
	device := model.Device{
		model.KeyFC:         "AT1L0",
		model.KeyDiscussion: []model.Comment{{ID: "c-1", Author: "alice", Comment: "hi"}},
		model.KeySubdevices: []model.Device{{model.KeyFC: "AT1L0:SUB"}},
		"tags":              []string{"one"},
	}

	clone := device.Clone()
	clone[model.KeyFC] = "changed"
	clone.Discussion()[0].Comment = "edited"
	clone[model.KeySubdevices].([]model.Device)[0][model.KeyFC] = "edited"
	clone["tags"].([]string)[0] = "edited"

	if device.FC() != "AT1L0" {
		t.Error("clone shares the top-level map")
	}
	if device.Discussion()[0].Comment != "hi" {
		t.Error("clone shares the discussion slice")
	}
	if device[model.KeySubdevices].([]model.Device)[0].FC() != "AT1L0:SUB" {
		t.Error("clone shares the subdevice records")
	}
	if device["tags"].([]string)[0] != "one" {
		t.Error("clone shares string slices")
	}
}

func TestEncodeDecodeDevice(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	device := model.Device{
		model.KeyID:         "dev-1",
		model.KeyProjectID:  "prj-1",
		model.KeyFC:         "AT1L0",
		model.KeyDeviceType: int(model.TypeComponent),
		model.KeyState:      string(model.StateConceptual),
		model.KeyCreated:    created,
		model.KeyDiscussion: []model.Comment{
			{ID: "c-1", Author: "alice", Comment: "hello", Created: created},
		},
		model.KeySubdevices: []model.Device{
			{model.KeyFC: "AT1L0:SUB", model.KeyDeviceType: int(model.TypeComponent), model.KeyCreated: created},
		},
		"nom_loc_z": 120.5,
	}

	data, err := model.EncodeDevice(device)
	if err != nil {
		t.Fatalf("EncodeDevice() error = %v", err)
	}
	decoded, err := model.DecodeDevice(data)
	if err != nil {
		t.Fatalf("DecodeDevice() error = %v", err)
	}

	if decoded.FC() != "AT1L0" || decoded.ID() != "dev-1" {
		t.Errorf("identity fields lost: fc=%q id=%q", decoded.FC(), decoded.ID())
	}
	if got, ok := decoded.Created(); !ok || !got.Equal(created) {
		t.Errorf("created = %v, want %v restored as time.Time", got, created)
	}
	if dt, ok := decoded.Type(); !ok || dt != model.TypeComponent {
		t.Errorf("device type = %v, want %v", dt, model.TypeComponent)
	}

	discussion := decoded.Discussion()
	if len(discussion) != 1 || discussion[0].Author != "alice" || !discussion[0].Created.Equal(created) {
		t.Errorf("discussion = %+v, want the typed comment back", discussion)
	}

	subs, ok := decoded[model.KeySubdevices].([]model.Device)
	if !ok || len(subs) != 1 || subs[0].FC() != "AT1L0:SUB" {
		t.Errorf("subdevices = %v, want one typed record", decoded[model.KeySubdevices])
	}
	if created, ok := subs[0].Created(); !ok {
		t.Errorf("subdevice created = %v, want restored time", created)
	}

	// numbers come back as float64; equality via ValuesEqual
	if !model.ValuesEqual(decoded["nom_loc_z"], 120.5) {
		t.Errorf("nom_loc_z = %v", decoded["nom_loc_z"])
	}
}

func TestAsInt(t *testing.T) {
	t.Parallel()
	if n, ok := model.AsInt(float64(3)); !ok || n != 3 {
		t.Errorf("AsInt(3.0) = %d, %v", n, ok)
	}
	if _, ok := model.AsInt(3.5); ok {
		t.Error("AsInt(3.5) accepted a fractional value")
	}
	if n, ok := model.AsInt(int64(9)); !ok || n != 9 {
		t.Errorf("AsInt(int64) = %d, %v", n, ok)
	}
	if _, ok := model.AsInt("3"); ok {
		t.Error("AsInt accepted a string")
	}
}
