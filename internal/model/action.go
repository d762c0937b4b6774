package model

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind is the kind of device action.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionLongClick   ActionKind = "long_click"
	ActionInput       ActionKind = "input"
	ActionSwipe       ActionKind = "swipe"
	ActionKey         ActionKind = "press_key"
	ActionLaunch      ActionKind = "launch_app"
	ActionTerminate   ActionKind = "terminate_app"
	ActionOpenURL     ActionKind = "open_url"
	ActionWait        ActionKind = "wait"
)

// Action is a single command dispatched to a device driver.
type Action struct {
	Kind     ActionKind    `yaml:"kind"               json:"kind"`
	Point    Point         `yaml:"point,omitempty"    json:"point,omitempty"`
	To       Point         `yaml:"to,omitempty"       json:"to,omitempty"`
	Text     string        `yaml:"text,omitempty"     json:"text,omitempty"`
	Key      string        `yaml:"key,omitempty"      json:"key,omitempty"`
	KeyCode  int           `yaml:"keycode,omitempty"  json:"keycode,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
	Package  string        `yaml:"package,omitempty"  json:"package,omitempty"`
}

// String renders the action for logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionClick, ActionDoubleClick, ActionLongClick:
		return fmt.Sprintf("%s(%d,%d)", a.Kind, a.Point.X, a.Point.Y)
	case ActionInput:
		return fmt.Sprintf("input(%q)", a.Text)
	case ActionSwipe:
		return fmt.Sprintf("swipe(%d,%d->%d,%d)", a.Point.X, a.Point.Y, a.To.X, a.To.Y)
	case ActionKey:
		return fmt.Sprintf("press_key(%s=%d)", a.Key, a.KeyCode)
	case ActionLaunch, ActionTerminate:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Package)
	case ActionOpenURL:
		return fmt.Sprintf("open_url(%s)", a.Text)
	default:
		return string(a.Kind)
	}
}

// Direction is a swipe direction.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection converts a flag or tool argument to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction: %q (expected up, down, left, or right)", s)
	}
}

// Orientation is the display orientation of a device.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// ParseOrientation converts a flag or tool argument to an Orientation.
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(strings.ToLower(strings.TrimSpace(s))); o {
	case OrientationPortrait, OrientationLandscape:
		return o, nil
	default:
		return "", fmt.Errorf("unknown orientation: %q (expected portrait or landscape)", s)
	}
}

// SwipePoints returns start and end points for a swipe across the screen.
// An upward swipe moves from 80% to 20% of the height along the center line.
func SwipePoints(d Direction, screen Size) (Point, Point) {
	cx, cy := screen.Width/2, screen.Height/2
	hi, lo := screen.Height*8/10, screen.Height*2/10
	right, left := screen.Width*8/10, screen.Width*2/10
	switch d {
	case DirectionDown:
		return Point{cx, lo}, Point{cx, hi}
	case DirectionLeft:
		return Point{right, cy}, Point{left, cy}
	case DirectionRight:
		return Point{left, cy}, Point{right, cy}
	default:
		return Point{cx, hi}, Point{cx, lo}
	}
}

// SignalKind names an awaited post-action signal.
type SignalKind string

const (
	SignalText    SignalKind = "text"    // text or toast appears anywhere
	SignalElement SignalKind = "element" // element with this resource-id appears
	SignalGone    SignalKind = "gone"    // text disappears
)

// Signal is something the verifier waits for in addition to page change.
type Signal struct {
	Kind  SignalKind `yaml:"kind"  json:"kind"`
	Value string     `yaml:"value" json:"value"`
}

// String renders the signal for evidence and logs.
func (s Signal) String() string {
	return fmt.Sprintf("%s=%q", s.Kind, s.Value)
}

// VerificationResult describes whether an action had an observable effect.
type VerificationResult struct {
	Success      bool    `yaml:"success"                 json:"success"`
	ChangeRatio  float64 `yaml:"change_ratio"            json:"change_ratio"`
	Evidence     string  `yaml:"evidence,omitempty"      json:"evidence,omitempty"`
	FallbackUsed bool    `yaml:"fallback_used,omitempty" json:"fallback_used,omitempty"`
	Samples      int     `yaml:"samples"                 json:"samples"`
	Elapsed      string  `yaml:"elapsed"                 json:"elapsed"`
}

// ActionRecord is one entry in a recording session's action log.
type ActionRecord struct {
	Seq          int        `yaml:"seq"                     json:"seq"`
	Kind         ActionKind `yaml:"kind"                    json:"kind"`
	Strategy     Strategy   `yaml:"strategy,omitempty"      json:"strategy,omitempty"`
	Locator      string     `yaml:"locator,omitempty"       json:"locator,omitempty"`
	Value        string     `yaml:"value,omitempty"         json:"value,omitempty"`
	Point        Point      `yaml:"point"                   json:"point"`
	To           Point      `yaml:"to,omitempty"            json:"to,omitempty"`
	Screen       Size       `yaml:"screen"                  json:"screen"`
	Success      bool       `yaml:"success"                 json:"success"`
	Evidence     string     `yaml:"evidence,omitempty"      json:"evidence,omitempty"`
	FallbackUsed bool       `yaml:"fallback_used,omitempty" json:"fallback_used,omitempty"`
	At           time.Time  `yaml:"at"                      json:"at"`
}
