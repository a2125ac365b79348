package acdsee

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: []string{}},
		{
			name: "nested",
			in: `<Categories>
				<Category Assigned="0">People
					<Category Assigned="1">Family</Category>
					<Category Assigned="0">Friends
						<Category Assigned="1">Joan</Category>
					</Category>
				</Category>
				<Category Assigned="1">Places</Category>
			</Categories>`,
			want: []string{"People|Family", "People|Friends|Joan", "Places"},
		},
		{
			name: "duplicates",
			in:   `<Categories><Category Assigned="1">A</Category><Category Assigned="1">A</Category></Categories>`,
			want: []string{"A"},
		},
		{
			name: "unassigned only",
			in:   `<Categories><Category Assigned="0">A</Category><Category>B</Category></Categories>`,
			want: []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := ParseCategories(tc.in)
			if err != nil {
				t.Fatalf("ParseCategories: %v", err)
			}
			if got := h.Joined("|"); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Joined = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTagHierarchy(t *testing.T) {
	h := NewTagHierarchy([]string{"b", "c"}, []string{"a"})
	h.Add([]string{"b", "c"})
	h.Add(nil)
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
	if !h.Contains([]string{"b", "c"}) || h.Contains([]string{"b"}) {
		t.Fatalf("Contains mismatch")
	}
	paths := h.Paths()
	paths[0][0] = "mutated"
	if !h.Contains([]string{"a"}) {
		t.Fatalf("Paths returned internal storage")
	}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `[["a"],["b","c"]]` {
		t.Fatalf("json = %s", data)
	}
	var nilHierarchy *TagHierarchy
	if nilHierarchy.Len() != 0 || nilHierarchy.Contains([]string{"a"}) {
		t.Fatalf("nil hierarchy not empty")
	}
}
