package loopback

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
)

const (
	restitution = 0.3
	restSpeed   = 0.1
	maxDelta    = 0.1
)

type object struct {
	d        body.Descriptor
	st       state
	quat     mgl64.Quat
	half     float64
	impulse  mgl64.Vec3
	broken   bool
	touching bool
}

func newObject(d body.Descriptor) *object {
	pose := d.Pose.Normalized()
	return &object{
		d:    d,
		st:   state{pos: pose.Position, vel: d.LinearVelocity},
		quat: pose.Orientation,
		half: halfHeight(d),
	}
}

// halfHeight is the distance from the center to the lowest point at rest.
func halfHeight(d body.Descriptor) float64 {
	switch d.Type {
	case "sphere", "highsphere":
		return d.Shape.Size.X()
	}
	return d.Shape.Size.Y() / 2
}

// world is the loopback's trivial physics: free fall onto the plane y=0.
type world struct {
	options protocol.Options
	objects map[string]*object
	order   [layout.NumCategories][]*object
}

func newWorld(o protocol.Options) *world {
	return &world{options: o, objects: make(map[string]*object)}
}

func (w *world) add(d body.Descriptor) {
	w.remove(d.Name)
	obj := newObject(d)
	w.objects[d.Name] = obj
	if cat, ok := d.Category(); ok {
		w.order[cat] = append(w.order[cat], obj)
	}
}

func (w *world) remove(name string) bool {
	obj, ok := w.objects[name]
	if !ok {
		return false
	}
	delete(w.objects, name)
	for i, list := range w.order {
		for j, o := range list {
			if o == obj {
				w.order[i] = append(list[:j:j], list[j+1:]...)
				break
			}
		}
	}
	return true
}

func (w *world) clear() {
	w.objects = make(map[string]*object)
	w.order = [layout.NumCategories][]*object{}
}

// clearDynamic drops every dynamic object. Static objects stay in the world
// for collisions and ray casts but leave the slots, since the host forgets
// its tracks on any reset.
func (w *world) clearDynamic() {
	for name, obj := range w.objects {
		if obj.d.Dynamic() {
			delete(w.objects, name)
		}
	}
	w.order = [layout.NumCategories][]*object{}
}

func (w *world) gravity() mgl64.Vec3 {
	g := w.options.Gravity
	return mgl64.Vec3{g[0], g[1], g[2]}.Mul(w.options.WorldScale)
}

// step integrates every dynamic object and returns the break requests
// raised by ground impacts.
func (w *world) step(delta float64) []protocol.BreakRequest {
	dt := delta
	if w.options.Fixed && w.options.FPS > 0 {
		dt = 1 / float64(w.options.FPS)
	}
	dt = math.Min(math.Max(dt, 0), maxDelta)
	sub := max(w.options.Substep, 1)
	h := dt / float64(sub)
	g := w.gravity()

	var breaks []protocol.BreakRequest
	for _, name := range w.names() {
		obj := w.objects[name]
		if !obj.d.Dynamic() || obj.broken {
			continue
		}
		if obj.impulse != (mgl64.Vec3{}) {
			obj.st.vel = obj.st.vel.Add(obj.impulse.Mul(1 / obj.d.Mass))
			obj.impulse = mgl64.Vec3{}
		}
		for i := 0; i < sub; i++ {
			obj.st = euler(obj.st, g, h)
			if req, ok := w.ground(obj); ok {
				breaks = append(breaks, req)
				break
			}
		}
	}
	w.contacts()
	return breaks
}

// ground resolves contact with the plane y=0. A breakable object hit harder
// than its maxImpulse is frozen and reported instead of bouncing.
func (w *world) ground(obj *object) (protocol.BreakRequest, bool) {
	bottom := obj.st.pos.Y() - obj.half
	if bottom > 0 || obj.st.vel.Y() >= 0 {
		return protocol.BreakRequest{}, false
	}
	impulse := obj.d.Mass * -obj.st.vel.Y()
	if obj.d.Breakable && obj.d.Break != nil && impulse > obj.d.Break.MaxImpulse {
		obj.broken = true
		vel := obj.st.vel
		return protocol.BreakRequest{
			Name:           obj.d.Name,
			Point:          obj.st.pos.Sub(mgl64.Vec3{0, obj.half, 0}),
			Normal:         mgl64.Vec3{0, 1, 0},
			Options:        *obj.d.Break,
			LinearVelocity: &vel,
		}, true
	}
	obj.st.pos[1] = obj.half
	obj.st.vel[1] = -obj.st.vel[1] * restitution
	if math.Abs(obj.st.vel[1]) < restSpeed {
		obj.st.vel[1] = 0
	}
	return protocol.BreakRequest{}, false
}

// contacts flags collision objects overlapped by any dynamic object.
func (w *world) contacts() {
	for _, c := range w.order[layout.Contact] {
		c.touching = false
		reach := c.d.Shape.Size.Len() / 2
		for _, obj := range w.objects {
			if obj == c || !obj.d.Dynamic() {
				continue
			}
			if obj.st.pos.Sub(c.st.pos).Len() <= reach+obj.half {
				c.touching = true
				break
			}
		}
	}
}

func (w *world) names() []string {
	names := make([]string, 0, len(w.objects))
	for name := range w.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func putPose(rec []float32, speed float64, pos mgl64.Vec3, q mgl64.Quat) {
	rec[0] = float32(speed)
	rec[1], rec[2], rec[3] = float32(pos[0]), float32(pos[1]), float32(pos[2])
	rec[4], rec[5], rec[6], rec[7] = float32(q.V[0]), float32(q.V[1]), float32(q.V[2]), float32(q.W)
}

// write encodes the world into the shared buffer slots.
func (w *world) write(buf *layout.Buffer, l layout.Layout) {
	if data := buf.Slice(l.Slot(layout.RigidBody)); data != nil {
		w.writePoses(data, w.order[layout.RigidBody])
	}
	if data := buf.Slice(l.Slot(layout.Character)); data != nil {
		w.writePoses(data, w.order[layout.Character])
	}
	if data := buf.Slice(l.Slot(layout.Contact)); data != nil {
		for i, c := range w.order[layout.Contact] {
			if i >= len(data) {
				break
			}
			data[i] = 0
			if c.touching {
				data[i] = 1
			}
		}
	}
	if data := buf.Slice(l.Slot(layout.Vehicle)); data != nil {
		stride := layout.Vehicle.Stride()
		for i, v := range w.order[layout.Vehicle] {
			if (i+1)*stride > len(data) {
				break
			}
			rec := data[i*stride : (i+1)*stride]
			putPose(rec[:8], v.st.vel.Len(), v.st.pos, v.quat)
			for k := 0; k < v.d.Wheels(); k++ {
				putPose(rec[8+k*8:16+k*8], 0, v.st.pos, v.quat)
			}
		}
	}
	if data := buf.Slice(l.Slot(layout.SoftBodyPoint)); data != nil {
		off := 0
		for _, s := range w.order[layout.SoftBodyPoint] {
			for k := 0; k < s.d.Points(); k++ {
				if off+3 > len(data) {
					return
				}
				data[off], data[off+1], data[off+2] = float32(s.st.pos[0]), float32(s.st.pos[1]), float32(s.st.pos[2])
				off += 3
			}
		}
	}
}

func (w *world) writePoses(data []float32, list []*object) {
	for i, obj := range list {
		if (i+1)*8 > len(data) {
			return
		}
		speed := obj.st.vel.Len()
		if obj.broken {
			speed = -1
		}
		putPose(data[i*8:(i+1)*8], speed, obj.st.pos, obj.quat)
	}
}

// rayCast intersects the ray with each object's bounding sphere.
func (w *world) rayCast(r protocol.RayCast) []protocol.Hit {
	dir := r.Direction
	if dir.Len() == 0 {
		return nil
	}
	dir = dir.Normalize()
	var hits []protocol.Hit
	for _, name := range w.names() {
		obj := w.objects[name]
		if !matches(r.Filters, obj.d.Type) {
			continue
		}
		radius := obj.d.Shape.Size.Len() / 2
		if obj.d.Type == "sphere" || obj.d.Type == "highsphere" {
			radius = obj.d.Shape.Size.X()
		}
		if radius <= 0 {
			continue
		}
		oc := r.Origin.Sub(obj.st.pos)
		b := oc.Dot(dir)
		c := oc.Dot(oc) - radius*radius
		disc := b*b - c
		if disc < 0 {
			continue
		}
		t := -b - math.Sqrt(disc)
		if t < 0 {
			continue
		}
		p := r.Origin.Add(dir.Mul(t))
		hits = append(hits, protocol.Hit{Name: name, Point: p, Normal: p.Sub(obj.st.pos).Normalize(), Distance: t})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits
}

func matches(filters []string, typ string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == typ {
			return true
		}
	}
	return false
}
