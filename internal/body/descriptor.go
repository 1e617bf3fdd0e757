package body

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a position plus orientation.
type Pose struct {
	Position    mgl64.Vec3 `json:"pos"`
	Orientation mgl64.Quat `json:"quat"`
}

// IdentityPose sits at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// Normalized returns the pose with a unit orientation; a zero quaternion
// becomes the identity.
func (p Pose) Normalized() Pose {
	if p.Orientation.Len() == 0 {
		p.Orientation = mgl64.QuatIdent()
		return p
	}
	p.Orientation = p.Orientation.Normalize()
	return p
}

// Apply transforms a point from the pose's local frame to the parent frame.
func (p Pose) Apply(local mgl64.Vec3) mgl64.Vec3 {
	return p.Position.Add(p.Orientation.Rotate(local))
}

// Inverse transforms a point from the parent frame into the pose's local frame.
func (p Pose) Inverse(world mgl64.Vec3) mgl64.Vec3 {
	return p.Orientation.Inverse().Rotate(world.Sub(p.Position))
}

// Plane is the set of points x with Normal·x = D. Normal points to the outside
// of any half-space it bounds.
type Plane struct {
	Normal mgl64.Vec3 `json:"normal"`
	D      float64    `json:"d"`
}

// Distance is the signed distance of p from the plane, positive on the normal side.
func (pl Plane) Distance(p mgl64.Vec3) float64 {
	return pl.Normal.Dot(p) - pl.D
}

// Shape describes the collision geometry. Size holds the full box extents,
// or radius (X) and height (Y) for round shapes. Planes bound convex shapes.
type Shape struct {
	Size   mgl64.Vec3 `json:"size"`
	Planes []Plane    `json:"planes,omitempty"`
}

// BreakOptions bound recursive fragmentation. On the wire it is the four-element
// array [maxImpulse, maxRadial, maxRandom, subdivisionLevel].
type BreakOptions struct {
	MaxImpulse       float64
	MaxRadial        int
	MaxRandom        int
	SubdivisionLevel int
}

// DefaultBreakOptions matches the settings used for breakable props.
func DefaultBreakOptions() BreakOptions {
	return BreakOptions{MaxImpulse: 250, MaxRadial: 1, MaxRandom: 2, SubdivisionLevel: 1}
}

// Next returns the options one fragmentation pass deeper.
func (b BreakOptions) Next() BreakOptions {
	b.SubdivisionLevel--
	return b
}

// Breakable reports whether fragmentation budget remains.
func (b BreakOptions) Breakable() bool {
	return b.SubdivisionLevel > 0
}

func (b BreakOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.MaxImpulse, float64(b.MaxRadial), float64(b.MaxRandom), float64(b.SubdivisionLevel)})
}

func (b *BreakOptions) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("break options: expected 4 values, got %d", len(arr))
	}
	b.MaxImpulse = arr[0]
	b.MaxRadial = int(arr[1])
	b.MaxRandom = int(arr[2])
	b.SubdivisionLevel = int(arr[3])
	return nil
}

// Descriptor describes one physics object. Name is the unique key shared by
// both sides of the bridge.
type Descriptor struct {
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Shape           Shape          `json:"shape"`
	Pose            Pose           `json:"pose"`
	Mass            float64        `json:"mass"`
	Material        string         `json:"material,omitempty"`
	Margin          float64        `json:"margin,omitempty"`
	LinearVelocity  mgl64.Vec3     `json:"linearVelocity"`
	AngularVelocity mgl64.Vec3     `json:"angularVelocity"`
	Breakable       bool           `json:"breakable,omitempty"`
	Break           *BreakOptions  `json:"breakOption,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Kind resolves the descriptor's category.
func (d Descriptor) Kind() (Kind, error) {
	return ParseKind(d.Type)
}

// Dynamic reports whether the simulation moves the object.
func (d Descriptor) Dynamic() bool {
	return d.Mass > 0
}
