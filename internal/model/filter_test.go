package model

import "testing"

func TestFilterElements_NoFilters(t *testing.T) {
	elements := []Element{
		{Index: 0, Role: "btn", Bounds: Rect{0, 0, 100, 30}},
		{Index: 1, Role: "txt", Bounds: Rect{0, 30, 100, 20}},
	}
	result := FilterElements(elements, FilterOptions{})
	if len(result) != 2 {
		t.Errorf("expected 2 elements, got %d", len(result))
	}
}

func TestFilterElements_RoleFilter(t *testing.T) {
	elements := []Element{
		{Index: 0, Role: "btn"},
		{Index: 1, Role: "txt"},
		{Index: 2, Role: "input"},
	}
	result := FilterElements(elements, FilterOptions{Roles: []string{"btn", "input"}})
	if len(result) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(result))
	}
	if result[0].Role != "btn" || result[1].Role != "input" {
		t.Errorf("unexpected roles: %s, %s", result[0].Role, result[1].Role)
	}
}

func TestFilterElements_MetaRole(t *testing.T) {
	elements := []Element{
		{Index: 0, Role: "btn"},
		{Index: 1, Role: "txt"},
		{Index: 2, Role: "toggle"},
	}
	result := FilterElements(elements, FilterOptions{Roles: []string{"interactive"}})
	if len(result) != 2 {
		t.Errorf("expected btn and toggle, got %d elements", len(result))
	}
}

func TestFilterElements_BBoxFilter(t *testing.T) {
	elements := []Element{
		{Index: 0, Role: "btn", Bounds: Rect{10, 10, 50, 30}},   // inside
		{Index: 1, Role: "btn", Bounds: Rect{200, 200, 50, 30}}, // outside
		{Index: 2, Role: "btn", Bounds: Rect{90, 90, 50, 30}},   // overlaps
	}
	bbox := Rect{0, 0, 100, 100}
	result := FilterElements(elements, FilterOptions{BBox: &bbox})
	if len(result) != 2 {
		t.Errorf("expected 2 elements (inside + overlapping), got %d", len(result))
	}
}

func TestFilterElements_TextAndInteractive(t *testing.T) {
	elements := []Element{
		{Index: 0, Role: "txt", Text: "Login to continue"},
		{Index: 1, Role: "btn", Text: "Login", Clickable: true},
		{Index: 2, Role: "img", ResourceID: "com.app:id/login_logo"},
	}
	result := FilterElements(elements, FilterOptions{Text: "login", InteractiveOnly: true})
	if len(result) != 1 || result[0].Index != 1 {
		t.Errorf("expected only the clickable login button, got %+v", result)
	}
}

func TestFilterElements_MaxElements(t *testing.T) {
	elements := []Element{{Index: 0}, {Index: 1}, {Index: 2}}
	result := FilterElements(elements, FilterOptions{MaxElements: 2})
	if len(result) != 2 {
		t.Errorf("expected 2 elements, got %d", len(result))
	}
}

func TestPruneEmptyGroups(t *testing.T) {
	elements := []Element{
		{Index: 0, Role: "group"},
		{Index: 1, Role: "group", ResourceID: "com.app:id/content"},
		{Index: 2, Role: "other", Clickable: true},
		{Index: 3, Role: "btn"},
	}
	result := PruneEmptyGroups(elements)
	if len(result) != 3 {
		t.Errorf("expected 3 elements after pruning, got %d", len(result))
	}
}

func TestRectIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want bool
	}{
		{"overlapping", Rect{0, 0, 100, 100}, Rect{50, 50, 100, 100}, true},
		{"adjacent_no_overlap", Rect{0, 0, 100, 100}, Rect{100, 0, 100, 100}, false},
		{"contained", Rect{0, 0, 200, 200}, Rect{50, 50, 10, 10}, true},
		{"no_overlap", Rect{0, 0, 10, 10}, Rect{20, 20, 10, 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Intersects(tt.b)
			if got != tt.want {
				t.Errorf("Intersects(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
