package fracture

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
)

const (
	eps       = 1e-7
	minVolume = 1e-12

	sphereDirections = 26
	cylinderSides    = 12
)

// Polytope is a convex solid stored as the intersection of half-spaces
// n·x <= D, in the owning body's local frame.
type Polytope struct {
	Planes []body.Plane
}

// Box builds an axis-aligned box from its full extents.
func Box(size mgl64.Vec3) Polytope {
	h := size.Mul(0.5)
	return Polytope{Planes: []body.Plane{
		{Normal: mgl64.Vec3{1, 0, 0}, D: h.X()},
		{Normal: mgl64.Vec3{-1, 0, 0}, D: h.X()},
		{Normal: mgl64.Vec3{0, 1, 0}, D: h.Y()},
		{Normal: mgl64.Vec3{0, -1, 0}, D: h.Y()},
		{Normal: mgl64.Vec3{0, 0, 1}, D: h.Z()},
		{Normal: mgl64.Vec3{0, 0, -1}, D: h.Z()},
	}}
}

// Sphere approximates a sphere with the 26 lattice directions.
func Sphere(radius float64) Polytope {
	planes := make([]body.Plane, 0, sphereDirections)
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			for z := -1; z <= 1; z++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				n := mgl64.Vec3{float64(x), float64(y), float64(z)}.Normalize()
				planes = append(planes, body.Plane{Normal: n, D: radius})
			}
		}
	}
	return Polytope{Planes: planes}
}

// Cylinder builds a Y-aligned prism with cylinderSides faces.
func Cylinder(radius, height float64) Polytope {
	planes := make([]body.Plane, 0, cylinderSides+2)
	for i := 0; i < cylinderSides; i++ {
		a := 2 * math.Pi * float64(i) / cylinderSides
		planes = append(planes, body.Plane{Normal: mgl64.Vec3{math.Cos(a), 0, math.Sin(a)}, D: radius})
	}
	planes = append(planes,
		body.Plane{Normal: mgl64.Vec3{0, 1, 0}, D: height / 2},
		body.Plane{Normal: mgl64.Vec3{0, -1, 0}, D: height / 2},
	)
	return Polytope{Planes: planes}
}

// FromDescriptor builds the solid for a breakable object.
func FromDescriptor(d body.Descriptor) (Polytope, error) {
	var p Polytope
	switch d.Type {
	case "sphere", "highsphere":
		p = Sphere(d.Shape.Size.X())
	case "cylinder", "hardcylinder":
		p = Cylinder(d.Shape.Size.X(), d.Shape.Size.Y())
	case "convex":
		p = Polytope{Planes: append([]body.Plane(nil), d.Shape.Planes...)}
	default:
		p = Box(d.Shape.Size)
	}
	if p.Empty() {
		return Polytope{}, fmt.Errorf("fracture: %q has an empty %s shape", d.Name, d.Type)
	}
	return p, nil
}

func (p Polytope) inside(x mgl64.Vec3) bool {
	for _, pl := range p.Planes {
		if pl.Distance(x) > eps {
			return false
		}
	}
	return true
}

// Vertices returns the corner points, found as the feasible intersections of
// every plane triple.
func (p Polytope) Vertices() []mgl64.Vec3 {
	var out []mgl64.Vec3
	n := len(p.Planes)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				a, b, c := p.Planes[i], p.Planes[j], p.Planes[k]
				m := mgl64.Mat3FromRows(a.Normal, b.Normal, c.Normal)
				if math.Abs(m.Det()) < 1e-12 {
					continue
				}
				x := m.Inv().Mul3x1(mgl64.Vec3{a.D, b.D, c.D})
				if !p.inside(x) || containsPoint(out, x) {
					continue
				}
				out = append(out, x)
			}
		}
	}
	return out
}

func containsPoint(pts []mgl64.Vec3, x mgl64.Vec3) bool {
	for _, q := range pts {
		if q.ApproxEqualThreshold(x, 1e-6) {
			return true
		}
	}
	return false
}

// faces returns, per plane, the vertices lying on it in winding order. Planes
// touching fewer than three vertices are redundant and yield nil.
func (p Polytope) faces(verts []mgl64.Vec3) [][]mgl64.Vec3 {
	out := make([][]mgl64.Vec3, len(p.Planes))
	for i, pl := range p.Planes {
		var on []mgl64.Vec3
		for _, v := range verts {
			if math.Abs(pl.Distance(v)) <= 1e-6 {
				on = append(on, v)
			}
		}
		if len(on) < 3 {
			continue
		}
		var c mgl64.Vec3
		for _, v := range on {
			c = c.Add(v)
		}
		c = c.Mul(1 / float64(len(on)))
		u := on[0].Sub(c).Normalize()
		w := pl.Normal.Cross(u)
		sort.Slice(on, func(a, b int) bool {
			da, db := on[a].Sub(c), on[b].Sub(c)
			return math.Atan2(da.Dot(w), da.Dot(u)) < math.Atan2(db.Dot(w), db.Dot(u))
		})
		out[i] = on
	}
	return out
}

// VolumeCentroid integrates the solid as a fan of tetrahedra around an
// interior point.
func (p Polytope) VolumeCentroid() (float64, mgl64.Vec3) {
	verts := p.Vertices()
	if len(verts) < 4 {
		return 0, mgl64.Vec3{}
	}
	var mid mgl64.Vec3
	for _, v := range verts {
		mid = mid.Add(v)
	}
	mid = mid.Mul(1 / float64(len(verts)))

	var vol float64
	var acc mgl64.Vec3
	for _, f := range p.faces(verts) {
		for i := 1; i+1 < len(f); i++ {
			a, b, c := f[0].Sub(mid), f[i].Sub(mid), f[i+1].Sub(mid)
			tv := math.Abs(a.Dot(b.Cross(c))) / 6
			vol += tv
			acc = acc.Add(mid.Add(f[0]).Add(f[i]).Add(f[i+1]).Mul(tv / 4))
		}
	}
	if vol < minVolume {
		return 0, mgl64.Vec3{}
	}
	return vol, acc.Mul(1 / vol)
}

func (p Polytope) Volume() float64 {
	v, _ := p.VolumeCentroid()
	return v
}

func (p Polytope) Empty() bool {
	return p.Volume() < minVolume
}

// prune drops planes that do not bound a face, and duplicates.
func (p Polytope) prune() Polytope {
	faces := p.faces(p.Vertices())
	var kept []body.Plane
	for i, pl := range p.Planes {
		if faces[i] == nil || hasPlane(kept, pl) {
			continue
		}
		kept = append(kept, pl)
	}
	return Polytope{Planes: kept}
}

func hasPlane(planes []body.Plane, pl body.Plane) bool {
	for _, q := range planes {
		if q.Normal.Dot(pl.Normal) > 1-1e-9 && math.Abs(q.D-pl.D) < eps {
			return true
		}
	}
	return false
}

// Cut splits the solid by pl. below lies on the side opposite the normal.
// A side with no volume is returned as ok=false.
func (p Polytope) Cut(pl body.Plane) (below, above Polytope, okBelow, okAbove bool) {
	flipped := body.Plane{Normal: pl.Normal.Mul(-1), D: -pl.D}
	below = Polytope{Planes: append(append([]body.Plane(nil), p.Planes...), pl)}
	above = Polytope{Planes: append(append([]body.Plane(nil), p.Planes...), flipped)}
	if !below.Empty() {
		below, okBelow = below.prune(), true
	}
	if !above.Empty() {
		above, okAbove = above.prune(), true
	}
	return below, above, okBelow, okAbove
}

// Translate moves the solid by t.
func (p Polytope) Translate(t mgl64.Vec3) Polytope {
	out := make([]body.Plane, len(p.Planes))
	for i, pl := range p.Planes {
		out[i] = body.Plane{Normal: pl.Normal, D: pl.D + pl.Normal.Dot(t)}
	}
	return Polytope{Planes: out}
}

// Extents is the size of the axis-aligned bounding box.
func (p Polytope) Extents() mgl64.Vec3 {
	verts := p.Vertices()
	if len(verts) == 0 {
		return mgl64.Vec3{}
	}
	lo, hi := verts[0], verts[0]
	for _, v := range verts[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], v[i])
			hi[i] = math.Max(hi[i], v[i])
		}
	}
	return hi.Sub(lo)
}
