package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy names a locator resolution strategy.
type Strategy string

const (
	StrategyID      Strategy = "id"
	StrategyText    Strategy = "text"
	StrategyPercent Strategy = "percent"
	StrategyVision  Strategy = "vision"
	StrategyCoords  Strategy = "coords"
)

// Hint disambiguates between several equal matches.
// Valid values are top, bottom, left, right, first, last, or a 0-based ordinal.
type Hint string

const (
	HintNone   Hint = ""
	HintTop    Hint = "top"
	HintBottom Hint = "bottom"
	HintLeft   Hint = "left"
	HintRight  Hint = "right"
	HintFirst  Hint = "first"
	HintLast   Hint = "last"
)

// ParseHint validates a hint string.
func ParseHint(s string) (Hint, error) {
	h := Hint(strings.ToLower(strings.TrimSpace(s)))
	switch h {
	case HintNone, HintTop, HintBottom, HintLeft, HintRight, HintFirst, HintLast:
		return h, nil
	}
	if _, ok := h.Ordinal(); ok {
		return h, nil
	}
	return HintNone, fmt.Errorf("invalid hint %q (expected top, bottom, left, right, first, last, or an index)", s)
}

// Ordinal returns the 0-based position requested by a numeric hint.
func (h Hint) Ordinal() (int, bool) {
	n, err := strconv.Atoi(string(h))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Query describes a target to resolve. Several fields may be set at once;
// the locator tries them in strategy order.
type Query struct {
	ID          string        `yaml:"id,omitempty"          json:"id,omitempty"`
	Text        string        `yaml:"text,omitempty"        json:"text,omitempty"`
	Percent     *PercentPoint `yaml:"percent,omitempty"     json:"percent,omitempty"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Hint        Hint          `yaml:"hint,omitempty"        json:"hint,omitempty"`
}

// Validate checks that the query names at least one target.
func (q Query) Validate() error {
	if q.ID == "" && q.Text == "" && q.Percent == nil && q.Description == "" {
		return fmt.Errorf("query needs at least one of id, text, percent, or description")
	}
	if q.Percent != nil && !q.Percent.Valid() {
		return fmt.Errorf("percent coordinates must be within 0-100, got (%.1f, %.1f)", q.Percent.X, q.Percent.Y)
	}
	return nil
}

// String renders the query for error messages and logs.
func (q Query) String() string {
	var parts []string
	if q.ID != "" {
		parts = append(parts, fmt.Sprintf("id=%q", q.ID))
	}
	if q.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", q.Text))
	}
	if q.Percent != nil {
		parts = append(parts, fmt.Sprintf("percent=(%.1f,%.1f)", q.Percent.X, q.Percent.Y))
	}
	if q.Description != "" {
		parts = append(parts, fmt.Sprintf("description=%q", q.Description))
	}
	if q.Hint != HintNone {
		parts = append(parts, fmt.Sprintf("hint=%s", q.Hint))
	}
	return strings.Join(parts, " ")
}

// Resolution is the outcome of a successful locate.
type Resolution struct {
	Element   Element  `yaml:"element"             json:"element"`
	Point     Point    `yaml:"point"               json:"point"`
	Strategy  Strategy `yaml:"strategy"            json:"strategy"`
	Matches   int      `yaml:"matches"             json:"matches"`
	Synthetic bool     `yaml:"synthetic,omitempty" json:"synthetic,omitempty"`
}

// VisionRequest asks an external recognizer to find a target in a screen region.
type VisionRequest struct {
	ID          string `yaml:"id"                    json:"id"`
	Purpose     string `yaml:"purpose"               json:"purpose"`
	Description string `yaml:"description"           json:"description"`
	Region      Rect   `yaml:"region,flow"           json:"region"`
	Screen      Size   `yaml:"screen"                json:"screen"`
	ImagePNG    []byte `yaml:"-"                     json:"image_png,omitempty"`
	ImageFile   string `yaml:"image_file,omitempty"  json:"image_file,omitempty"`
}
