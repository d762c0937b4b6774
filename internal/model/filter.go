package model

import "strings"

// FilterOptions narrows an element list for display.
type FilterOptions struct {
	Roles           []string // Only include these roles (meta-roles expanded)
	BBox            *Rect    // Only include elements intersecting this rectangle
	Text            string   // Substring match on text, description, or resource-id
	InteractiveOnly bool     // Only clickable, focusable, or scrollable elements
	MaxElements     int      // 0 = unlimited
}

// FilterElements applies the options to a flat element list, preserving
// document order. Indexes are left untouched so callers can still refer to
// elements by their snapshot position.
func FilterElements(elements []Element, opts FilterOptions) []Element {
	roleSet := make(map[string]bool, len(opts.Roles))
	for _, r := range ExpandRoles(opts.Roles) {
		roleSet[r] = true
	}
	textLower := strings.ToLower(opts.Text)

	var result []Element
	for _, el := range elements {
		if len(roleSet) > 0 && !roleSet[el.Role] {
			continue
		}
		if opts.BBox != nil && !el.Bounds.Intersects(*opts.BBox) {
			continue
		}
		if textLower != "" && !textMatchesElement(el, textLower) {
			continue
		}
		if opts.InteractiveOnly && !IsInteractive(el) {
			continue
		}
		result = append(result, el)
		if opts.MaxElements > 0 && len(result) >= opts.MaxElements {
			break
		}
	}
	return result
}

// IsInteractive reports whether an agent can act on the element.
func IsInteractive(el Element) bool {
	return el.Clickable || el.Focusable || el.Scrollable || el.Role == "input"
}

func textMatchesElement(el Element, textLower string) bool {
	return strings.Contains(strings.ToLower(el.Text), textLower) ||
		strings.Contains(strings.ToLower(el.Description), textLower) ||
		strings.Contains(strings.ToLower(el.ResourceID), textLower)
}

// PruneEmptyGroups removes anonymous group/other nodes that carry no text,
// description, or id and are not interactive.
func PruneEmptyGroups(elements []Element) []Element {
	var result []Element
	for _, el := range elements {
		if (el.Role == "group" || el.Role == "other") &&
			el.Text == "" && el.Description == "" && el.ResourceID == "" && !IsInteractive(el) {
			continue
		}
		result = append(result, el)
	}
	return result
}
