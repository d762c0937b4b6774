package model

import (
	"encoding/json"
	"testing"
)

func TestElement_JSONKeys(t *testing.T) {
	el := Element{Index: 1, Role: "btn", Text: "OK", Bounds: Rect{10, 20, 100, 30}}
	data, err := json.Marshal(el)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"i", "r", "t", "b"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected key %q in JSON output", key)
		}
	}
	for _, key := range []string{"e", "c", "f", "id"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected key %q to be omitted", key)
		}
	}
}

func TestPercentConversion(t *testing.T) {
	screen := Size{Width: 1080, Height: 2400}
	p := PercentPoint{X: 50, Y: 25}.ToPoint(screen)
	if p != (Point{X: 540, Y: 600}) {
		t.Errorf("unexpected point %+v", p)
	}
	back := ToPercent(Point{X: 540, Y: 600}, screen)
	if back != (PercentPoint{X: 50, Y: 25}) {
		t.Errorf("unexpected percent %+v", back)
	}
	if got := ToPercent(Point{X: 100, Y: 100}, screen); got.X != 9.3 || got.Y != 4.2 {
		t.Errorf("expected one-decimal rounding, got %+v", got)
	}
	if got := ToPercent(Point{X: 1, Y: 1}, Size{}); got != (PercentPoint{}) {
		t.Errorf("expected zero percent on unknown screen, got %+v", got)
	}
}

func TestRectClamp(t *testing.T) {
	screen := Size{Width: 100, Height: 200}
	got := Rect{-10, 190, 50, 30}.Clamp(screen)
	if got != (Rect{0, 190, 40, 10}) {
		t.Errorf("unexpected clamp %v", got)
	}
}

func TestSwipePoints(t *testing.T) {
	screen := Size{Width: 1000, Height: 2000}
	from, to := SwipePoints(DirectionUp, screen)
	if from != (Point{500, 1600}) || to != (Point{500, 400}) {
		t.Errorf("unexpected up swipe %v -> %v", from, to)
	}
	from, to = SwipePoints(DirectionLeft, screen)
	if from != (Point{800, 1000}) || to != (Point{200, 1000}) {
		t.Errorf("unexpected left swipe %v -> %v", from, to)
	}
}

func TestParseHint(t *testing.T) {
	for _, s := range []string{"", "top", "Bottom", "last", "2"} {
		if _, err := ParseHint(s); err != nil {
			t.Errorf("ParseHint(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseHint("middle"); err == nil {
		t.Error("expected error for unknown hint")
	}
	if n, ok := Hint("3").Ordinal(); !ok || n != 3 {
		t.Errorf("expected ordinal 3, got %d %v", n, ok)
	}
}
