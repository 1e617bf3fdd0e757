package protocol

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/layout"
)

// Event is a simulation→consumer event. The set is closed.
type Event interface {
	Tag() string
	isEvent()
}

const (
	TagReady         = "ready"
	TagStepDone      = "stepDone"
	TagPoseUpdate    = "pose"
	TagEllipsoid     = "ellipsoid"
	TagBreak         = "break"
	TagRayCastResult = "rayCastResult"
)

type Ready struct {
	Revision string `json:"revision"`
	Transfer bool   `json:"transfer"`
}

// StepDone returns the shared buffer after one completed simulation tick.
type StepDone struct {
	Buffer *layout.Buffer `json:"-"`
}

// PoseUpdate moves a named object. Nil fields are left unchanged.
type PoseUpdate struct {
	Name        string      `json:"name"`
	Position    *mgl64.Vec3 `json:"pos,omitempty"`
	Orientation *mgl64.Quat `json:"quat,omitempty"`
}

// EllipsoidRequest announces a soft ellipsoid the simulation side built.
type EllipsoidRequest struct {
	Name   string     `json:"name"`
	Center mgl64.Vec3 `json:"center"`
	Radius mgl64.Vec3 `json:"radius"`
	Points int        `json:"points"`
	Mass   float64    `json:"mass"`
}

// BreakRequest asks the consumer to fragment a breakable object. Velocities
// are the object's state at the instant of the break, when known.
type BreakRequest struct {
	Name            string            `json:"name"`
	Point           mgl64.Vec3        `json:"pos"`
	Normal          mgl64.Vec3        `json:"normal"`
	Options         body.BreakOptions `json:"breakOption"`
	LinearVelocity  *mgl64.Vec3       `json:"linearVelocity,omitempty"`
	AngularVelocity *mgl64.Vec3       `json:"angularVelocity,omitempty"`
}

type Hit struct {
	Name     string     `json:"name"`
	Point    mgl64.Vec3 `json:"point"`
	Normal   mgl64.Vec3 `json:"normal"`
	Distance float64    `json:"distance"`
}

type RayCastResult struct {
	ID   int   `json:"id"`
	Hits []Hit `json:"hits"`
}

func (Ready) Tag() string            { return TagReady }
func (StepDone) Tag() string         { return TagStepDone }
func (PoseUpdate) Tag() string       { return TagPoseUpdate }
func (EllipsoidRequest) Tag() string { return TagEllipsoid }
func (BreakRequest) Tag() string     { return TagBreak }
func (RayCastResult) Tag() string    { return TagRayCastResult }

func (Ready) isEvent()            {}
func (StepDone) isEvent()         {}
func (PoseUpdate) isEvent()       {}
func (EllipsoidRequest) isEvent() {}
func (BreakRequest) isEvent()     {}
func (RayCastResult) isEvent()    {}
