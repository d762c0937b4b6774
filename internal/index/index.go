// Package index turns a uiautomator hierarchy dump into a queryable,
// immutable element index.
package index

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/mj1618/mobile-mcp/internal/model"
)

// boundsRe matches the uiautomator bounds format "[x1,y1][x2,y2]".
var boundsRe = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// Options describe the capture a dump came from.
type Options struct {
	Device  string
	Screen  model.Size
	TakenAt time.Time
}

// Position locates an element among others sharing its label.
type Position struct {
	Ordinal int  `yaml:"ordinal" json:"ordinal"`
	Count   int  `yaml:"count"   json:"count"`
	Top     bool `yaml:"top"     json:"top"`
	Bottom  bool `yaml:"bottom"  json:"bottom"`
	Left    bool `yaml:"left"    json:"left"`
	Right   bool `yaml:"right"   json:"right"`
}

// Index is a parsed snapshot with lookups by resource-id and normalized label.
// It is safe for concurrent reads.
type Index struct {
	snap      *model.Snapshot
	byID      map[string][]int
	byText    map[string][]int
	byDesc    map[string][]int
	positions []Position
}

// Parse reads a uiautomator XML dump. Nodes are kept when they carry text,
// a resource-id, or a content-desc, when they are clickable, focusable, or
// scrollable, or when they are dialogs or containers of several nodes, which
// overlay detection needs as layer roots. A malformed document or
// bounds attribute yields *model.ParseError.
func Parse(raw []byte, opts Options) (*Index, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, &model.ParseError{Detail: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &model.ParseError{Detail: "empty document"}
	}
	if root.Tag != "hierarchy" && root.Tag != "node" {
		return nil, &model.ParseError{Detail: "unexpected root element <" + root.Tag + ">"}
	}

	p := &parser{screen: opts.Screen}
	if root.Tag == "node" {
		if err := p.walk(root, 0, -1, ""); err != nil {
			return nil, err
		}
	} else {
		for _, child := range root.SelectElements("node") {
			if err := p.walk(child, 0, -1, ""); err != nil {
				return nil, err
			}
		}
	}

	taken := opts.TakenAt
	if taken.IsZero() {
		taken = time.Now()
	}
	return New(model.NewSnapshot(opts.Device, opts.Screen, taken, p.elements)), nil
}

// New builds the lookup tables for an existing snapshot. Element indexes must
// equal their positions in the snapshot.
func New(snap *model.Snapshot) *Index {
	idx := &Index{
		snap:   snap,
		byID:   make(map[string][]int),
		byText: make(map[string][]int),
		byDesc: make(map[string][]int),
	}
	for i := 0; i < snap.Len(); i++ {
		el := snap.At(i)
		if el.ResourceID != "" {
			idx.byID[el.ResourceID] = append(idx.byID[el.ResourceID], i)
			if short := shortID(el.ResourceID); short != el.ResourceID {
				idx.byID[short] = append(idx.byID[short], i)
			}
		}
		if t := Normalize(el.Text); t != "" {
			idx.byText[t] = append(idx.byText[t], i)
		}
		if d := Normalize(el.Description); d != "" {
			idx.byDesc[d] = append(idx.byDesc[d], i)
		}
	}
	idx.positions = computePositions(snap)
	return idx
}

// Snapshot returns the underlying immutable snapshot.
func (idx *Index) Snapshot() *model.Snapshot { return idx.snap }

// Screen returns the screen size the snapshot was taken at.
func (idx *Index) Screen() model.Size { return idx.snap.Screen() }

// Len returns the number of indexed elements.
func (idx *Index) Len() int { return idx.snap.Len() }

// Elements returns a copy of all elements in document order.
func (idx *Index) Elements() []model.Element { return idx.snap.Elements() }

// At returns the element at document position i.
func (idx *Index) At(i int) model.Element { return idx.snap.At(i) }

// Position returns the label-relative position metadata for element i.
func (idx *Index) Position(i int) Position { return idx.positions[i] }

// ByID returns elements whose resource-id equals id. A bare id such as
// "login_btn" also matches "com.app:id/login_btn".
func (idx *Index) ByID(id string) []model.Element {
	return idx.collect(idx.byID[strings.TrimSpace(id)])
}

// ByText returns elements whose normalized text equals text. When no text
// matches, elements whose content-desc matches are returned instead.
func (idx *Index) ByText(text string) []model.Element {
	key := Normalize(text)
	if key == "" {
		return nil
	}
	if hits := idx.byText[key]; len(hits) > 0 {
		return idx.collect(hits)
	}
	return idx.collect(idx.byDesc[key])
}

// Containing returns elements whose text or content-desc contains text,
// ignoring ASCII case.
func (idx *Index) Containing(text string) []model.Element {
	needle := strings.ToLower(Normalize(text))
	if needle == "" {
		return nil
	}
	var out []model.Element
	for i := 0; i < idx.snap.Len(); i++ {
		el := idx.snap.At(i)
		if strings.Contains(strings.ToLower(Normalize(el.Text)), needle) ||
			strings.Contains(strings.ToLower(Normalize(el.Description)), needle) {
			out = append(out, el)
		}
	}
	return out
}

// HasText reports whether any element shows text, exactly or as a substring.
func (idx *Index) HasText(text string) bool {
	return len(idx.ByText(text)) > 0 || len(idx.Containing(text)) > 0
}

func (idx *Index) collect(positions []int) []model.Element {
	if len(positions) == 0 {
		return nil
	}
	out := make([]model.Element, len(positions))
	for i, p := range positions {
		out[i] = idx.snap.At(p)
	}
	return out
}

// Normalize trims and collapses internal whitespace. It does not fold case:
// exact lookups stay exact.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func shortID(id string) string {
	if i := strings.Index(id, ":id/"); i >= 0 {
		return id[i+len(":id/"):]
	}
	return id
}

type parser struct {
	screen   model.Size
	elements []model.Element
}

func (p *parser) walk(node *etree.Element, depth, parent int, parentPath string) error {
	el, keep, err := p.convert(node, depth, parent)
	if err != nil {
		return err
	}

	childParent, childPath := parent, parentPath
	if keep {
		el.Index = len(p.elements)
		el.Path = el.Role
		if parentPath != "" {
			el.Path = parentPath + " > " + el.Role
		}
		p.elements = append(p.elements, el)
		childParent, childPath = el.Index, el.Path
	}

	for _, child := range node.SelectElements("node") {
		if err := p.walk(child, depth+1, childParent, childPath); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) convert(node *etree.Element, depth, parent int) (model.Element, bool, error) {
	attr := func(key string) string { return node.SelectAttrValue(key, "") }
	flag := func(key string) bool { return attr(key) == "true" }

	el := model.Element{
		Class:       attr("class"),
		ResourceID:  attr("resource-id"),
		Text:        attr("text"),
		Description: attr("content-desc"),
		Package:     attr("package"),
		Clickable:   flag("clickable") || flag("long-clickable"),
		Focusable:   flag("focusable"),
		Focused:     flag("focused"),
		Selected:    flag("selected"),
		Checked:     flag("checked"),
		Scrollable:  flag("scrollable"),
		Depth:       depth,
		Parent:      parent,
	}
	el.Role = model.MapRole(el.Class)
	if attr("enabled") == "false" {
		f := false
		el.Enabled = &f
	}

	keep := Normalize(el.Text) != "" || el.ResourceID != "" || Normalize(el.Description) != "" ||
		el.Clickable || el.Focusable || el.Scrollable || el.Role == "dialog" ||
		len(node.SelectElements("node")) > 1
	if !keep {
		return el, false, nil
	}

	b, err := ParseBounds(attr("bounds"))
	if err != nil {
		return el, false, err
	}
	if p.screen.Valid() {
		b = b.Clamp(p.screen)
	}
	el.Bounds = b
	return el, true, nil
}

// ParseBounds parses "[x1,y1][x2,y2]" into a Rect. Negative origins are
// clamped to zero.
func ParseBounds(s string) (model.Rect, error) {
	m := boundsRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return model.Rect{}, &model.ParseError{Detail: "invalid bounds " + strconv.Quote(s)}
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return model.Rect{}, &model.ParseError{Detail: "invalid bounds " + strconv.Quote(s), Err: err}
		}
		v[i] = n
	}
	if v[2] < v[0] || v[3] < v[1] {
		return model.Rect{}, &model.ParseError{Detail: "inverted bounds " + strconv.Quote(s)}
	}
	return model.Rect{v[0], v[1], v[2] - v[0], v[3] - v[1]}.Clamp(model.Size{}), nil
}

// computePositions groups elements by label and marks each one's place
// within its group.
func computePositions(snap *model.Snapshot) []Position {
	positions := make([]Position, snap.Len())
	groups := make(map[string][]int)
	var order []string
	for i := 0; i < snap.Len(); i++ {
		label := Normalize(snap.At(i).Label())
		if label == "" {
			label = "#" + strconv.Itoa(i)
		}
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], i)
	}

	for _, label := range order {
		members := groups[label]
		minY, maxY, minX, maxX := int(^uint(0)>>1), -1, int(^uint(0)>>1), -1
		for _, m := range members {
			c := snap.At(m).Center()
			minY, maxY = min(minY, c.Y), max(maxY, c.Y)
			minX, maxX = min(minX, c.X), max(maxX, c.X)
		}
		for ord, m := range members {
			c := snap.At(m).Center()
			positions[m] = Position{
				Ordinal: ord,
				Count:   len(members),
				Top:     c.Y == minY,
				Bottom:  c.Y == maxY,
				Left:    c.X == minX,
				Right:   c.X == maxX,
			}
		}
	}
	return positions
}
