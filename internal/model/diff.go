package model

import (
	"crypto/sha256"
	"fmt"
)

// HashChange represents a changed element detected by hash-based diffing.
type HashChange struct {
	Index   int                  `yaml:"i"               json:"i"`
	Role    string               `yaml:"r,omitempty"     json:"r,omitempty"`
	Label   string               `yaml:"t,omitempty"     json:"t,omitempty"`
	Changes map[string][2]string `yaml:"changes"         json:"changes"`
}

// TreeDiff is the result of comparing two element lists by content hash.
type TreeDiff struct {
	Added          []Element    `yaml:"added,omitempty"   json:"added,omitempty"`
	Removed        []Element    `yaml:"removed,omitempty" json:"removed,omitempty"`
	Changed        []HashChange `yaml:"changed,omitempty" json:"changed,omitempty"`
	UnchangedCount int          `yaml:"unchanged_count"   json:"unchanged_count"`
}

// ChangeRatio is the fraction of the union of both lists that was added,
// removed, or changed. Two empty lists have a ratio of zero.
func (d TreeDiff) ChangeRatio() float64 {
	touched := len(d.Added) + len(d.Removed) + len(d.Changed)
	total := touched + d.UnchangedCount
	if total == 0 {
		return 0
	}
	return float64(touched) / float64(total)
}

// ElementHash computes a stable identity hash for an element based on its
// semantic content and position in the tree. This allows matching elements
// across separate snapshots where document indexes may shift.
func ElementHash(el Element) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", el.Class, el.ResourceID, el.Text, el.Description, el.Path)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// DiffElementsByHash compares two element lists using content hashing for
// stable identity. Duplicate hashes (repeated list rows) are paired in order
// so a list that grows by one row counts as one addition.
func DiffElementsByHash(prev, curr []Element) TreeDiff {
	prevByHash := make(map[string][]Element, len(prev))
	for _, el := range prev {
		h := ElementHash(el)
		prevByHash[h] = append(prevByHash[h], el)
	}

	var diff TreeDiff
	for _, el := range curr {
		h := ElementHash(el)
		bucket := prevByHash[h]
		if len(bucket) == 0 {
			diff.Added = append(diff.Added, el)
			continue
		}
		prevEl := bucket[0]
		prevByHash[h] = bucket[1:]

		changes := diffProperties(prevEl, el)
		if len(changes) > 0 {
			diff.Changed = append(diff.Changed, HashChange{
				Index:   el.Index,
				Role:    el.Role,
				Label:   el.Label(),
				Changes: changes,
			})
		} else {
			diff.UnchangedCount++
		}
	}

	// Whatever is left unpaired in prev was removed
	for _, el := range prev {
		h := ElementHash(el)
		if bucket := prevByHash[h]; len(bucket) > 0 {
			diff.Removed = append(diff.Removed, bucket[0])
			prevByHash[h] = bucket[1:]
		}
	}

	return diff
}

// diffProperties compares mutable properties between two elements that were
// matched by content hash. We check bounds, focused, selected, checked, and
// enabled.
func diffProperties(prev, curr Element) map[string][2]string {
	diffs := make(map[string][2]string)

	if prev.Bounds != curr.Bounds {
		diffs["b"] = [2]string{
			fmt.Sprintf("%v", prev.Bounds),
			fmt.Sprintf("%v", curr.Bounds),
		}
	}
	if prev.Focused != curr.Focused {
		diffs["f"] = [2]string{
			fmt.Sprintf("%v", prev.Focused),
			fmt.Sprintf("%v", curr.Focused),
		}
	}
	if prev.Selected != curr.Selected {
		diffs["s"] = [2]string{
			fmt.Sprintf("%v", prev.Selected),
			fmt.Sprintf("%v", curr.Selected),
		}
	}
	if prev.Checked != curr.Checked {
		diffs["k"] = [2]string{
			fmt.Sprintf("%v", prev.Checked),
			fmt.Sprintf("%v", curr.Checked),
		}
	}
	if prev.IsEnabled() != curr.IsEnabled() {
		diffs["e"] = [2]string{
			fmt.Sprintf("%v", prev.IsEnabled()),
			fmt.Sprintf("%v", curr.IsEnabled()),
		}
	}

	if len(diffs) == 0 {
		return nil
	}
	return diffs
}
