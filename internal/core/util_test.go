package core

import (
	"reflect"
	"testing"
)

func TestDiffStrings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		old, updated []string
		want         diffResult
	}{
		{
			name:    "added and removed",
			old:     []string{"bob", "carol"},
			updated: []string{"bob", "dave"},
			want:    diffResult{New: []string{"dave"}, Removed: []string{"carol"}, InBoth: []string{"bob"}},
		},
		{
			name:    "identical",
			old:     []string{"bob"},
			updated: []string{"bob"},
			want:    diffResult{InBoth: []string{"bob"}},
		},
		{
			name:    "both empty",
			old:     nil,
			updated: nil,
			want:    diffResult{},
		},
		{
			name:    "duplicates collapse",
			old:     []string{"bob", "bob"},
			updated: []string{"carol", "carol"},
			want:    diffResult{New: []string{"carol"}, Removed: []string{"bob"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diffStrings(tt.old, tt.updated)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("diffStrings(%v, %v) = %+v, want %+v", tt.old, tt.updated, got, tt.want)
			}
		})
	}
}

func TestUsernamesFromIdentities(t *testing.T) {
	t.Parallel()
	got := usernamesFromIdentities([]string{"bob@example.com", "carol", "bob", "", "@example.com"})
	want := []string{"bob", "carol"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("usernamesFromIdentities() = %v, want %v", got, want)
	}
}

func TestImportCounter_Add(t *testing.T) {
	t.Parallel()
	c := ImportCounter{Success: 1, Headers: 5}
	c.Add(ImportCounter{Success: 2, Fail: 1, Ignored: 3})
	want := ImportCounter{Success: 3, Fail: 1, Ignored: 3, Headers: 5}
	if c != want {
		t.Errorf("counter = %+v, want %+v", c, want)
	}
}
