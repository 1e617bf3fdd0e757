package fracture

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
)

// Breaker performs radial subdivision around an impact. It is not safe for
// concurrent use; its random source is shared across calls.
type Breaker struct {
	rng *rand.Rand
}

func NewBreaker(seed uint64) *Breaker {
	return &Breaker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// radialPlane is the plane through origin containing axis and the direction
// ref rotated by angle about axis.
func radialPlane(origin, axis, ref mgl64.Vec3, angle float64) body.Plane {
	dir := mgl64.QuatRotate(angle, axis).Rotate(ref)
	n := axis.Cross(dir).Normalize()
	return body.Plane{Normal: n, D: n.Dot(origin)}
}

// across projects d onto the plane normal to axis, falling back to an
// arbitrary perpendicular when d runs along the axis.
func across(d, axis mgl64.Vec3) mgl64.Vec3 {
	p := d.Sub(axis.Mul(axis.Dot(d)))
	if p.Len() < 1e-9 {
		return perpendicular(axis)
	}
	return p.Normalize()
}

func perpendicular(v mgl64.Vec3) mgl64.Vec3 {
	if math.Abs(v.X()) < 0.9 {
		return v.Cross(mgl64.Vec3{1, 0, 0}).Normalize()
	}
	return v.Cross(mgl64.Vec3{0, 1, 0}).Normalize()
}

// SubdivideByImpact cuts solid into pieces with planes fanning around the
// impact normal. All geometry is in the solid's local frame, whose origin is
// the solid's center. The first maxRadial cuts are spread over the remaining
// angular sector; up to maxRandom further cuts split pieces through their own
// centroid.
func (b *Breaker) SubdivideByImpact(solid Polytope, point, normal mgl64.Vec3, maxRadial, maxRandom int) []Polytope {
	if normal.Len() < 1e-9 {
		normal = mgl64.Vec3{0, 1, 0}
	}
	normal = normal.Normalize()
	toCenter := across(point.Mul(-1), normal)
	maxTotal := maxRadial + maxRandom

	var debris []Polytope
	var subdivide func(piece Polytope, start, end float64, iter int)
	subdivide = func(piece Polytope, start, end float64, iter int) {
		if b.rng.Float64() < float64(iter)*0.05 || iter > maxTotal {
			debris = append(debris, piece)
			return
		}
		angle := math.Pi
		var cut body.Plane
		switch {
		case iter == 0:
			cut = radialPlane(point, normal, toCenter, 0)
		case iter <= maxRadial:
			angle = (end-start)*(0.2+0.6*b.rng.Float64()) + start
			cut = radialPlane(point, normal, toCenter, angle)
		default:
			angle = (0.5*float64(iter&1) + 0.2*(2-b.rng.Float64())) * math.Pi
			_, c := piece.VolumeCentroid()
			cut = radialPlane(c, normal, across(point.Sub(c), normal), angle)
		}
		lo, hi, okLo, okHi := piece.Cut(cut)
		if okLo {
			subdivide(lo, start, angle, iter+1)
		}
		if okHi {
			subdivide(hi, angle, end, iter+1)
		}
	}
	subdivide(solid, 0, 2*math.Pi, 0)
	return debris
}
