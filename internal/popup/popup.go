// Package popup finds the control that dismisses a blocking popup. It only
// reports; dismissing is left to the caller.
package popup

import (
	"sort"
	"strings"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/index"
	"github.com/mj1618/mobile-mcp/internal/model"
)

// Reason says why an element is a dismissal candidate.
type Reason string

const (
	ReasonVocabulary Reason = "vocabulary"
	ReasonIcon       Reason = "corner_icon"
)

// idWords are resource-id tokens that mark close buttons, as in "iv_close".
var idWords = map[string]bool{"close": true, "skip": true, "dismiss": true, "cancel": true}

// Candidate is a possible dismissal control inside the top-most layer.
type Candidate struct {
	Element model.Element `yaml:"element" json:"element"`
	Reason  Reason        `yaml:"reason"  json:"reason"`
	Layer   model.Layer   `yaml:"layer"   json:"layer"`
}

// Detector scans snapshots for popups. It is immutable and safe for
// concurrent use.
type Detector struct {
	vocab        map[string]bool
	iconMaxRatio float64
}

// New returns a detector using the dismissal vocabulary from tables. A
// clickable element counts as a corner icon when both sides are at most
// iconMaxRatio of the screen's shorter side.
func New(tables config.Tables, iconMaxRatio float64) *Detector {
	d := &Detector{vocab: make(map[string]bool), iconMaxRatio: iconMaxRatio}
	for _, w := range tables.Vocabulary() {
		if w = foldLabel(w); w != "" {
			d.vocab[w] = true
		}
	}
	return d
}

// Scan returns the best dismissal candidate, if any.
func (d *Detector) Scan(idx *index.Index) (model.Element, bool) {
	cands := d.Candidates(idx)
	if len(cands) == 0 {
		return model.Element{}, false
	}
	return cands[0].Element, true
}

// Candidates returns every dismissal candidate, best first. Only elements
// inside a detected overlay count; with no overlay there are none, so a
// "Cancel" on the main page is never reported.
func (d *Detector) Candidates(idx *index.Index) []Candidate {
	elements := idx.Elements()
	screen := idx.Screen()
	layer, ok := model.DetectFrontmostOverlay(elements, screen)
	if !ok {
		return nil
	}

	var out []Candidate
	for _, el := range elements {
		if el.Index == layer.Root.Index || !el.IsEnabled() || !layer.Contains(elements, el) {
			continue
		}
		switch {
		case d.matchesVocabulary(el):
			out = append(out, Candidate{Element: el, Reason: ReasonVocabulary, Layer: layer})
		case d.isCornerIcon(el, layer.Root.Bounds, screen):
			out = append(out, Candidate{Element: el, Reason: ReasonIcon, Layer: layer})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Reason != b.Reason {
			return a.Reason == ReasonVocabulary
		}
		if aa, ba := a.Element.Bounds.Area(), b.Element.Bounds.Area(); aa != ba {
			return aa < ba
		}
		if a.Element.Depth != b.Element.Depth {
			return a.Element.Depth > b.Element.Depth
		}
		return a.Element.Index < b.Element.Index
	})
	return out
}

func (d *Detector) matchesVocabulary(el model.Element) bool {
	if d.vocab[foldLabel(el.Text)] || d.vocab[foldLabel(el.Description)] {
		return true
	}
	if el.ResourceID == "" {
		return false
	}
	tail := strings.ToLower(el.ResourceID)
	if i := strings.LastIndex(tail, "/"); i >= 0 {
		tail = tail[i+1:]
	}
	if d.vocab[tail] {
		return true
	}
	for _, word := range strings.FieldsFunc(tail, func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
		if idWords[word] {
			return true
		}
	}
	return false
}

// isCornerIcon matches a small clickable element whose center sits in a
// corner quarter of the layer.
func (d *Detector) isCornerIcon(el model.Element, layer model.Rect, screen model.Size) bool {
	if !el.Clickable || el.Bounds.Empty() || !screen.Valid() {
		return false
	}
	limit := int(d.iconMaxRatio * float64(min(screen.Width, screen.Height)))
	if el.Bounds.W() > limit || el.Bounds.H() > limit {
		return false
	}
	c := el.Center()
	left := c.X < layer.X()+layer.W()/4
	right := c.X >= layer.X()+layer.W()*3/4
	top := c.Y < layer.Y()+layer.H()/4
	bottom := c.Y >= layer.Y()+layer.H()*3/4
	return (left || right) && (top || bottom)
}

// foldLabel normalizes a label for vocabulary comparison.
func foldLabel(s string) string {
	return strings.ToLower(index.Normalize(s))
}
