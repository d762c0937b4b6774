package model

// Element is one node of a device UI hierarchy, flattened into document order.
type Element struct {
	Index       int    `yaml:"i"             json:"i"`
	Role        string `yaml:"r"             json:"r"`
	Class       string `yaml:"cls,omitempty" json:"cls,omitempty"`
	ResourceID  string `yaml:"id,omitempty"  json:"id,omitempty"`
	Text        string `yaml:"t,omitempty"   json:"t,omitempty"`
	Description string `yaml:"d,omitempty"   json:"d,omitempty"`
	Package     string `yaml:"pkg,omitempty" json:"pkg,omitempty"`
	Bounds      Rect   `yaml:"b,flow"        json:"b"`
	Clickable   bool   `yaml:"c,omitempty"   json:"c,omitempty"`
	Enabled     *bool  `yaml:"e,omitempty"   json:"e,omitempty"` // nil or true = enabled (omit); false = disabled (include)
	Focusable   bool   `yaml:"-"             json:"-"`
	Focused     bool   `yaml:"f,omitempty"   json:"f,omitempty"`
	Selected    bool   `yaml:"s,omitempty"   json:"s,omitempty"`
	Checked     bool   `yaml:"k,omitempty"   json:"k,omitempty"`
	Scrollable  bool   `yaml:"sc,omitempty"  json:"sc,omitempty"`
	Depth       int    `yaml:"dp"            json:"dp"`
	Parent      int    `yaml:"-"             json:"-"` // nearest kept ancestor, -1 for roots
	Path        string `yaml:"p,omitempty"   json:"p,omitempty"`
}

// IsEnabled reports whether the element accepts input.
func (e Element) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Label returns the best human-readable label: text, then description.
func (e Element) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Description
}

// Center returns the tap point of the element.
func (e Element) Center() Point {
	return e.Bounds.Center()
}

// Rect is a screen rectangle stored as [x, y, width, height].
type Rect [4]int

// X returns the left edge.
func (r Rect) X() int { return r[0] }

// Y returns the top edge.
func (r Rect) Y() int { return r[1] }

// W returns the width.
func (r Rect) W() int { return r[2] }

// H returns the height.
func (r Rect) H() int { return r[3] }

// Area returns width times height.
func (r Rect) Area() int { return r[2] * r[3] }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r[2] <= 0 || r[3] <= 0 }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r[0] + r[2]/2, Y: r[1] + r[3]/2}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r[0] && p.X < r[0]+r[2] && p.Y >= r[1] && p.Y < r[1]+r[3]
}

// Encloses reports whether inner lies entirely inside r.
func (r Rect) Encloses(inner Rect) bool {
	return inner[0] >= r[0] && inner[1] >= r[1] &&
		inner[0]+inner[2] <= r[0]+r[2] && inner[1]+inner[3] <= r[1]+r[3]
}

// Intersects checks if two rectangles overlap.
func (r Rect) Intersects(o Rect) bool {
	ax1, ay1, ax2, ay2 := r[0], r[1], r[0]+r[2], r[1]+r[3]
	bx1, by1, bx2, by2 := o[0], o[1], o[0]+o[2], o[1]+o[3]
	return ax1 < bx2 && ax2 > bx1 && ay1 < by2 && ay2 > by1
}

// Clamp restricts the rectangle to the screen. Coordinates never go negative.
func (r Rect) Clamp(screen Size) Rect {
	x1, y1 := max(r[0], 0), max(r[1], 0)
	x2, y2 := r[0]+r[2], r[1]+r[3]
	if screen.Width > 0 {
		x1, x2 = min(x1, screen.Width), min(x2, screen.Width)
	}
	if screen.Height > 0 {
		y1, y2 = min(y1, screen.Height), min(y2, screen.Height)
	}
	return Rect{x1, y1, max(x2-x1, 0), max(y2-y1, 0)}
}

// Point is an absolute screen coordinate in pixels.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Size is a screen size in pixels.
type Size struct {
	Width  int `yaml:"width"  json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// PercentPoint is a resolution-independent coordinate, 0-100 on each axis.
type PercentPoint struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// ToPoint converts percentages to pixels against the screen size.
func (p PercentPoint) ToPoint(screen Size) Point {
	return Point{
		X: int(float64(screen.Width) * p.X / 100),
		Y: int(float64(screen.Height) * p.Y / 100),
	}
}

// Valid reports whether both axes are within 0-100.
func (p PercentPoint) Valid() bool {
	return p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

// ToPercent converts a pixel coordinate to percentages rounded to one decimal.
func ToPercent(p Point, screen Size) PercentPoint {
	if !screen.Valid() {
		return PercentPoint{}
	}
	return PercentPoint{
		X: round1(float64(p.X) / float64(screen.Width) * 100),
		Y: round1(float64(p.Y) / float64(screen.Height) * 100),
	}
}

func round1(v float64) float64 {
	if v < 0 {
		return -round1(-v)
	}
	return float64(int(v*10+0.5)) / 10
}
