package layout

import (
	"fmt"
	"strings"
)

// Category is a class of simulated object with a fixed per-record stride.
type Category int

const (
	RigidBody Category = iota
	Contact
	Character
	Vehicle
	SoftBodyPoint

	NumCategories = 5
)

var categoryNames = [NumCategories]string{"rigidbody", "contact", "character", "vehicle", "softpoint"}

// strides in scalars per record
var strides = [NumCategories]int{8, 1, 8, 56, 3}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Stride returns the number of scalars one record of this category occupies.
func (c Category) Stride() int {
	if c < 0 || int(c) >= NumCategories {
		return 0
	}
	return strides[c]
}

// Categories lists every category in slot order.
func Categories() []Category {
	return []Category{RigidBody, Contact, Character, Vehicle, SoftBodyPoint}
}

const (
	DefaultMaxBody      = 1400
	DefaultMaxContact   = 200
	DefaultMaxCharacter = 10
	DefaultMaxCar       = 14
	DefaultMaxSoftPoint = 8192
)

// Capacity holds the per-category record capacity hints.
type Capacity struct {
	MaxBody      int `yaml:"max_body" json:"maxBody"`
	MaxContact   int `yaml:"max_contact" json:"maxContact"`
	MaxCharacter int `yaml:"max_character" json:"maxCharacter"`
	MaxCar       int `yaml:"max_car" json:"maxCar"`
	MaxSoftPoint int `yaml:"max_soft_point" json:"maxSoftPoint"`
}

func DefaultCapacity() Capacity {
	return Capacity{
		MaxBody:      DefaultMaxBody,
		MaxContact:   DefaultMaxContact,
		MaxCharacter: DefaultMaxCharacter,
		MaxCar:       DefaultMaxCar,
		MaxSoftPoint: DefaultMaxSoftPoint,
	}
}

// Hint returns the capacity hint for a category, clamped to zero.
func (c Capacity) Hint(cat Category) int {
	var n int
	switch cat {
	case RigidBody:
		n = c.MaxBody
	case Contact:
		n = c.MaxContact
	case Character:
		n = c.MaxCharacter
	case Vehicle:
		n = c.MaxCar
	case SoftBodyPoint:
		n = c.MaxSoftPoint
	}
	if n < 0 {
		return 0
	}
	return n
}

// Slot is a fixed region of the shared buffer dedicated to one category.
type Slot struct {
	Category Category `json:"category"`
	Offset   int      `json:"offset"`
	Length   int      `json:"length"`
}

// End is the first scalar index past the slot.
func (s Slot) End() int { return s.Offset + s.Length }

// Records is the number of whole records the slot holds.
func (s Slot) Records() int {
	stride := s.Category.Stride()
	if stride == 0 {
		return 0
	}
	return s.Length / stride
}

// Layout partitions one flat buffer into contiguous slots, one per category,
// sorted by offset. It is immutable once planned.
type Layout struct {
	Slots [NumCategories]Slot `json:"slots"`
	Total int                 `json:"total"`
}

// Plan computes the layout for the given capacity hints. Slots are packed in
// category order starting at offset zero; a zero hint yields a zero-length slot.
func Plan(c Capacity) Layout {
	var l Layout
	offset := 0
	for _, cat := range Categories() {
		length := c.Hint(cat) * cat.Stride()
		l.Slots[cat] = Slot{Category: cat, Offset: offset, Length: length}
		offset += length
	}
	l.Total = offset
	return l
}

// Slot returns the slot for a category.
func (l Layout) Slot(cat Category) Slot {
	if cat < 0 || int(cat) >= NumCategories {
		return Slot{Category: cat}
	}
	return l.Slots[cat]
}

// Offsets returns the slot offsets in category order.
func (l Layout) Offsets() []int {
	out := make([]int, NumCategories)
	for i, s := range l.Slots {
		out[i] = s.Offset
	}
	return out
}

// Lengths returns the slot lengths in category order.
func (l Layout) Lengths() []int {
	out := make([]int, NumCategories)
	for i, s := range l.Slots {
		out[i] = s.Length
	}
	return out
}

// Validate checks the contiguity invariant. Layouts received over the wire are
// validated before use.
func (l Layout) Validate() error {
	offset := 0
	for i, s := range l.Slots {
		if s.Category != Category(i) {
			return fmt.Errorf("layout: slot %d holds %s", i, s.Category)
		}
		if s.Length < 0 {
			return fmt.Errorf("layout: slot %s has negative length %d", s.Category, s.Length)
		}
		if s.Offset != offset {
			return fmt.Errorf("layout: slot %s at offset %d, expected %d", s.Category, s.Offset, offset)
		}
		offset += s.Length
	}
	if l.Total != offset {
		return fmt.Errorf("layout: total %d does not match slot sum %d", l.Total, offset)
	}
	return nil
}

func (l Layout) String() string {
	var b strings.Builder
	for i, s := range l.Slots {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s[%d:%d]", s.Category, s.Offset, s.End())
	}
	fmt.Fprintf(&b, " total=%d", l.Total)
	return b.String()
}
