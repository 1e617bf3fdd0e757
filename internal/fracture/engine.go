package fracture

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/registry"
)

// DebrisMargin is the collision margin given to every fragment.
const DebrisMargin = 0.05

// World is where fragments go: removing the parent and adding debris must
// reach both the registry and the simulation side.
type World interface {
	Remove(name string) error
	Add(d body.Descriptor) error
}

// Impact describes one break event, in world coordinates.
type Impact struct {
	Name            string
	Point           mgl64.Vec3
	Normal          mgl64.Vec3
	Options         body.BreakOptions
	LinearVelocity  *mgl64.Vec3
	AngularVelocity *mgl64.Vec3
}

type Engine struct {
	registry *registry.Registry
	world    World
	breaker  *Breaker
	logger   *log.Logger
}

func NewEngine(reg *registry.Registry, world World, seed uint64, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		registry: reg,
		world:    world,
		breaker:  NewBreaker(seed),
		logger:   logger.WithPrefix("fracture"),
	}
}

// DebrisName is the synthesized name of the i-th fragment of parent.
func DebrisName(parent string, i int) string {
	return fmt.Sprintf("%s_debris%d", parent, i)
}

// Break replaces the named object with its fragments. A target that is no
// longer registered, is not marked breakable, or has no subdivision budget
// left is skipped without error.
func (e *Engine) Break(imp Impact) ([]body.Descriptor, error) {
	entry, ok := e.registry.Lookup(imp.Name)
	if !ok {
		e.logger.Debug("break target gone", "name", imp.Name)
		return nil, nil
	}
	if !imp.Options.Breakable() || !entry.Descriptor.Breakable {
		e.logger.Debug("break target not breakable", "name", imp.Name, "level", imp.Options.SubdivisionLevel)
		return nil, nil
	}
	parent := entry.Descriptor
	if entry.Handle != nil {
		parent.Pose = body.Pose{
			Position:    entry.Handle.Position(),
			Orientation: entry.Handle.Orientation(),
		}.Normalized()
	}
	if imp.LinearVelocity != nil {
		parent.LinearVelocity = *imp.LinearVelocity
	}
	if imp.AngularVelocity != nil {
		parent.AngularVelocity = *imp.AngularVelocity
	}

	debris, err := e.Fragment(parent, imp.Point, imp.Normal, imp.Options)
	if err != nil {
		return nil, err
	}

	if err := e.world.Remove(parent.Name); err != nil {
		return nil, fmt.Errorf("remove %q: %w", parent.Name, err)
	}
	for i := len(debris) - 1; i >= 0; i-- {
		if err := e.world.Add(debris[i]); err != nil {
			return debris, fmt.Errorf("add %q: %w", debris[i].Name, err)
		}
	}
	e.logger.Info("broke object", "name", parent.Name, "pieces", len(debris), "level", imp.Options.SubdivisionLevel)
	return debris, nil
}

// Fragment computes the debris descriptors for parent without touching the
// world.
func (e *Engine) Fragment(parent body.Descriptor, point, normal mgl64.Vec3, opts body.BreakOptions) ([]body.Descriptor, error) {
	solid, err := FromDescriptor(parent)
	if err != nil {
		return nil, err
	}
	pose := parent.Pose.Normalized()
	localPoint := pose.Inverse(point)
	localNormal := pose.Orientation.Inverse().Rotate(normal)

	pieces := e.breaker.SubdivideByImpact(solid, localPoint, localNormal, opts.MaxRadial, opts.MaxRandom)
	total := solid.Volume()
	next := opts.Next()

	out := make([]body.Descriptor, 0, len(pieces))
	for i, piece := range pieces {
		vol, centroid := piece.VolumeCentroid()
		local := piece.Translate(centroid.Mul(-1))
		nextOpts := next
		out = append(out, body.Descriptor{
			Name:  DebrisName(parent.Name, i),
			Type:  "convex",
			Shape: body.Shape{Size: local.Extents(), Planes: local.Planes},
			Pose: body.Pose{
				Position:    pose.Apply(centroid),
				Orientation: pose.Orientation,
			},
			Mass:            parent.Mass * vol / total,
			Material:        parent.Material,
			Margin:          DebrisMargin,
			LinearVelocity:  parent.LinearVelocity,
			AngularVelocity: parent.AngularVelocity,
			Breakable:       next.Breakable(),
			Break:           &nextOpts,
		})
	}
	return out, nil
}
