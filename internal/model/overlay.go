package model

import "strings"

// overlayClassMarkers are class-name fragments of dialogs, sheets, and popup windows.
var overlayClassMarkers = []string{"Dialog", "PopupWindow", "BottomSheet", "AlertController"}

// minOverlayConfidence is the score a container needs to count as a layer.
const minOverlayConfidence = 0.6

// Layer is the top-most visual layer detected on screen.
type Layer struct {
	Root       Element `yaml:"root"       json:"root"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Strategy   string  `yaml:"strategy"   json:"strategy"`
}

// Contains reports whether el belongs to the layer: it is the root or one of
// its descendants.
func (l Layer) Contains(elements []Element, el Element) bool {
	return el.Index == l.Root.Index || IsDescendant(elements, el, l.Root.Index)
}

// DetectFrontmostOverlay examines a flat element list to find a modal dialog,
// sheet, or popup that sits above the main content.
//
// Detection strategies (tried in order):
//  1. Class-based: an element whose class names a dialog or popup window.
//  2. Focus-based: the focused element lives under a top-level container that
//     is not the first (main) one and that container is overlay-sized.
//  3. Score-based: a container smaller than the screen that scores at least
//     0.6 on the centering and area model. Later containers win because
//     document order approximates z-order.
//
// Elements must be indexed so that elements[i].Index == i.
func DetectFrontmostOverlay(elements []Element, screen Size) (Layer, bool) {
	if len(elements) == 0 || !screen.Valid() {
		return Layer{}, false
	}
	children := childIndex(elements)

	// Strategy 1: class names, last one in document order is on top
	for i := len(elements) - 1; i >= 0; i-- {
		el := elements[i]
		if isOverlayClass(el) && len(children[i]) > 0 {
			return Layer{Root: el, Confidence: overlayConfidence(el, screen), Strategy: "class"}, true
		}
	}

	tops := topLevelContainers(elements, children)
	if len(tops) < 2 {
		return Layer{}, false
	}

	// Strategy 2: focus is inside a non-first top-level container
	for _, el := range elements {
		if !el.Focused {
			continue
		}
		top := topAncestor(elements, el, tops)
		if top > tops[0] && isOverlaySized(elements[top].Bounds, screen) {
			return Layer{Root: elements[top], Confidence: overlayConfidence(elements[top], screen), Strategy: "focus"}, true
		}
	}

	// Strategy 3: scored containers outside the main content. A centered
	// form inside the page is not a layer.
	for i := len(elements) - 1; i > tops[0]; i-- {
		el := elements[i]
		if len(children[i]) == 0 || !isOverlaySized(el.Bounds, screen) {
			continue
		}
		if IsDescendant(elements, el, tops[0]) {
			continue
		}
		if score := overlayConfidence(el, screen); score >= minOverlayConfidence {
			return Layer{Root: el, Confidence: score, Strategy: "bounds"}, true
		}
	}

	return Layer{}, false
}

// IsDescendant walks the parent chain of el looking for ancestor.
func IsDescendant(elements []Element, el Element, ancestor int) bool {
	for p := el.Parent; p >= 0 && p < len(elements); p = elements[p].Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func isOverlayClass(el Element) bool {
	if el.Role == "dialog" {
		return true
	}
	for _, marker := range overlayClassMarkers {
		if strings.Contains(el.Class, marker) {
			return true
		}
	}
	return false
}

// overlayConfidence scores a container: dialog class, horizontal centering,
// vertical centering, and a plausible dialog area each contribute.
func overlayConfidence(el Element, screen Size) float64 {
	var score float64
	if isOverlayClass(el) {
		score += 0.4
	}
	c := el.Bounds.Center()
	if abs(c.X-screen.Width/2) < screen.Width/10 {
		score += 0.2
	}
	if abs(c.Y-screen.Height/2) < screen.Height/5 {
		score += 0.2
	}
	ratio := float64(el.Bounds.Area()) / float64(screen.Width*screen.Height)
	if ratio >= 0.1 && ratio <= 0.6 {
		score += 0.2
	}
	return score
}

// isOverlaySized returns true if the candidate is meaningfully smaller than
// the screen (below 80% in at least one dimension).
func isOverlaySized(b Rect, screen Size) bool {
	if b.Empty() {
		return false
	}
	return b.W() < screen.Width*80/100 || b.H() < screen.Height*80/100
}

// childIndex maps each element to the indexes of its direct children.
func childIndex(elements []Element) map[int][]int {
	children := make(map[int][]int, len(elements))
	for _, el := range elements {
		if el.Parent >= 0 {
			children[el.Parent] = append(children[el.Parent], el.Index)
		}
	}
	return children
}

// topLevelContainers returns the children of the shallowest element that has
// more than one child, which is where apps stack content and overlays.
func topLevelContainers(elements []Element, children map[int][]int) []int {
	var roots []int
	for _, el := range elements {
		if el.Parent < 0 {
			roots = append(roots, el.Index)
		}
	}
	level := roots
	for len(level) == 1 {
		next := children[level[0]]
		if len(next) == 0 {
			break
		}
		level = next
	}
	return level
}

// topAncestor returns which of tops contains el, or -1.
func topAncestor(elements []Element, el Element, tops []int) int {
	for _, t := range tops {
		if el.Index == t || IsDescendant(elements, el, t) {
			return t
		}
	}
	return -1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
