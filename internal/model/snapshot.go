package model

import "time"

// Snapshot is an immutable capture of the on-screen elements at one instant.
// Accessors return copies so callers cannot alter a snapshot after creation.
type Snapshot struct {
	device   string
	taken    time.Time
	screen   Size
	elements []Element
}

// NewSnapshot copies elements into a new snapshot.
func NewSnapshot(device string, screen Size, taken time.Time, elements []Element) *Snapshot {
	cp := make([]Element, len(elements))
	copy(cp, elements)
	for i := range cp {
		if cp[i].Enabled != nil {
			v := *cp[i].Enabled
			cp[i].Enabled = &v
		}
	}
	return &Snapshot{device: device, taken: taken, screen: screen, elements: cp}
}

// Device returns the serial of the device the snapshot was taken from.
func (s *Snapshot) Device() string { return s.device }

// TakenAt returns the capture timestamp.
func (s *Snapshot) TakenAt() time.Time { return s.taken }

// Screen returns the screen size at capture time.
func (s *Snapshot) Screen() Size { return s.screen }

// Len returns the number of elements.
func (s *Snapshot) Len() int { return len(s.elements) }

// At returns a copy of the element at document position i.
func (s *Snapshot) At(i int) Element {
	return s.elements[i]
}

// Elements returns a copy of the element list.
func (s *Snapshot) Elements() []Element {
	cp := make([]Element, len(s.elements))
	copy(cp, s.elements)
	return cp
}

// SnapshotView is the serializable form of a snapshot for output.
type SnapshotView struct {
	Device   string    `yaml:"device,omitempty" json:"device,omitempty"`
	TS       int64     `yaml:"ts"               json:"ts"`
	Screen   Size      `yaml:"screen"           json:"screen"`
	Elements []Element `yaml:"elements"         json:"elements"`
}

// View returns the serializable form of the snapshot.
func (s *Snapshot) View() SnapshotView {
	return SnapshotView{
		Device:   s.device,
		TS:       s.taken.Unix(),
		Screen:   s.screen,
		Elements: s.Elements(),
	}
}
