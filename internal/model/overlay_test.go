package model

import "testing"

var testScreen = Size{Width: 1000, Height: 2000}

// indexed assigns Index from slice position so test trees read naturally.
func indexed(elements ...Element) []Element {
	for i := range elements {
		elements[i].Index = i
	}
	return elements
}

func TestDetectFrontmostOverlay_ClassBased(t *testing.T) {
	elements := indexed(
		Element{Parent: -1, Class: "android.widget.FrameLayout", Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 0, Class: "android.widget.LinearLayout", Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 1, Role: "btn", Text: "Home", Bounds: Rect{0, 1900, 200, 100}},
		Element{Parent: 0, Role: "dialog", Class: "android.app.Dialog", Bounds: Rect{100, 600, 800, 800}},
		Element{Parent: 3, Role: "btn", Text: "OK", Bounds: Rect{400, 1200, 200, 80}},
	)

	layer, ok := DetectFrontmostOverlay(elements, testScreen)
	if !ok {
		t.Fatal("expected overlay to be detected")
	}
	if layer.Root.Index != 3 {
		t.Errorf("expected overlay index 3, got %d", layer.Root.Index)
	}
	if layer.Strategy != "class" {
		t.Errorf("expected class strategy, got %s", layer.Strategy)
	}
}

func TestDetectFrontmostOverlay_NoOverlay(t *testing.T) {
	elements := indexed(
		Element{Parent: -1, Class: "android.widget.FrameLayout", Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 0, Class: "android.widget.LinearLayout", Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 1, Role: "btn", Text: "Submit", Bounds: Rect{400, 1000, 200, 80}},
		Element{Parent: 1, Role: "btn", Text: "Cancel", Bounds: Rect{0, 1900, 200, 100}},
	)

	if layer, ok := DetectFrontmostOverlay(elements, testScreen); ok {
		t.Errorf("expected no overlay, got element index %d", layer.Root.Index)
	}
}

func TestDetectFrontmostOverlay_FocusBased(t *testing.T) {
	// Overlay is off-center so only focus identifies it.
	elements := indexed(
		Element{Parent: -1, Class: "android.widget.FrameLayout", Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 0, Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 1, Role: "btn", Text: "Background", Bounds: Rect{100, 100, 100, 40}},
		Element{Parent: 0, Bounds: Rect{0, 1400, 1000, 600}},
		Element{Parent: 3, Role: "input", Focused: true, Bounds: Rect{50, 1500, 900, 100}},
	)

	layer, ok := DetectFrontmostOverlay(elements, testScreen)
	if !ok {
		t.Fatal("expected overlay to be detected via focus")
	}
	if layer.Root.Index != 3 || layer.Strategy != "focus" {
		t.Errorf("expected focus overlay at 3, got %d (%s)", layer.Root.Index, layer.Strategy)
	}
}

func TestDetectFrontmostOverlay_BoundsBased(t *testing.T) {
	elements := indexed(
		Element{Parent: -1, Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 0, Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 1, Role: "btn", Text: "Feed", Bounds: Rect{0, 200, 1000, 300}},
		Element{Parent: 0, Bounds: Rect{200, 700, 600, 600}},
		Element{Parent: 3, Role: "btn", Text: "Confirm", Bounds: Rect{450, 1100, 100, 40}},
	)

	layer, ok := DetectFrontmostOverlay(elements, testScreen)
	if !ok {
		t.Fatal("expected overlay to be detected via bounds")
	}
	if layer.Root.Index != 3 {
		t.Errorf("expected overlay index 3, got %d", layer.Root.Index)
	}
	if layer.Confidence < minOverlayConfidence {
		t.Errorf("expected confidence >= %.1f, got %.2f", minOverlayConfidence, layer.Confidence)
	}
}

func TestDetectFrontmostOverlay_OffCenterNotScored(t *testing.T) {
	// A small top banner is not a dialog.
	elements := indexed(
		Element{Parent: -1, Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 0, Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 1, Role: "txt", Text: "Feed", Bounds: Rect{0, 200, 1000, 300}},
		Element{Parent: 0, Bounds: Rect{0, 0, 1000, 150}},
		Element{Parent: 3, Role: "txt", Text: "Banner", Bounds: Rect{0, 0, 1000, 150}},
	)

	if layer, ok := DetectFrontmostOverlay(elements, testScreen); ok {
		t.Errorf("expected no overlay, got element index %d", layer.Root.Index)
	}
}

func TestDetectFrontmostOverlay_CenteredFormInPageIsNotOverlay(t *testing.T) {
	elements := indexed(
		Element{Parent: -1, Class: "android.widget.FrameLayout", Bounds: Rect{0, 0, 1000, 2000}},
		Element{Parent: 0, Class: "android.widget.LinearLayout", Bounds: Rect{0, 0, 1000, 1800}},
		Element{Parent: 1, Class: "android.widget.LinearLayout", Bounds: Rect{100, 600, 800, 800}},
		Element{Parent: 2, Role: "input", Class: "android.widget.EditText", Bounds: Rect{150, 700, 700, 100}},
		Element{Parent: 2, Role: "btn", Text: "取消", Bounds: Rect{150, 1200, 300, 100}},
		Element{Parent: 2, Role: "btn", Text: "确定", Bounds: Rect{550, 1200, 300, 100}},
		Element{Parent: 0, Class: "android.widget.LinearLayout", Bounds: Rect{0, 1800, 1000, 200}},
		Element{Parent: 6, Role: "btn", Text: "首页", Bounds: Rect{0, 1800, 500, 200}},
	)

	if layer, ok := DetectFrontmostOverlay(elements, testScreen); ok {
		t.Errorf("expected no overlay, got element index %d (%s)", layer.Root.Index, layer.Strategy)
	}
}

func TestLayerContains(t *testing.T) {
	elements := indexed(
		Element{Parent: -1},
		Element{Parent: 0},
		Element{Parent: 1},
		Element{Parent: 0},
		Element{Parent: 3},
	)
	layer := Layer{Root: elements[3]}
	if !layer.Contains(elements, elements[4]) {
		t.Error("expected child of root to be in layer")
	}
	if !layer.Contains(elements, elements[3]) {
		t.Error("expected root to be in layer")
	}
	if layer.Contains(elements, elements[2]) {
		t.Error("expected sibling subtree to be outside layer")
	}
}

func TestIsOverlaySized(t *testing.T) {
	if !isOverlaySized(Rect{200, 200, 600, 400}, testScreen) {
		t.Error("expected dialog to be overlay-sized")
	}
	if isOverlaySized(Rect{0, 0, 1000, 2000}, testScreen) {
		t.Error("expected full-size element not to be overlay-sized")
	}
}
