package body

import "github.com/san-kum/simbridge/internal/layout"

// DefaultWheels is the wheel count assumed for a vehicle that names none.
const DefaultWheels = 4

// MaxWheels is how many wheel records fit in one vehicle record.
const MaxWheels = 6

// Category reports which buffer slot the object writes records into. Static
// rigid bodies, terrain, rays and joints write none.
func (d Descriptor) Category() (layout.Category, bool) {
	k, err := d.Kind()
	if err != nil {
		return 0, false
	}
	switch k {
	case KindRigid:
		return layout.RigidBody, d.Dynamic()
	case KindSoft:
		return layout.SoftBodyPoint, true
	case KindCharacter:
		return layout.Character, true
	case KindCollision:
		return layout.Contact, true
	case KindVehicle:
		return layout.Vehicle, true
	}
	return 0, false
}

// Points is the soft-body point count carried in Extra["points"], never
// negative.
func (d Descriptor) Points() int {
	return max(0, d.extraInt("points", 0))
}

// Wheels is the vehicle wheel count carried in Extra["wheels"], capped at
// MaxWheels and floored at zero.
func (d Descriptor) Wheels() int {
	return max(0, min(d.extraInt("wheels", DefaultWheels), MaxWheels))
}

func (d Descriptor) extraInt(key string, def int) int {
	switch v := d.Extra[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
