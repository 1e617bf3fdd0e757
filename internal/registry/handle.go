package registry

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
)

// Handle is the consumer-side object a registry entry points at. The registry
// never owns it.
type Handle interface {
	Position() mgl64.Vec3
	Orientation() mgl64.Quat
	SetPosition(p mgl64.Vec3)
	SetOrientation(q mgl64.Quat)
}

// WheelSetter is implemented by handles that draw vehicle wheels.
type WheelSetter interface {
	SetWheel(i int, spin float64, pose body.Pose)
}

// PointSetter is implemented by handles that draw soft-body points.
type PointSetter interface {
	SetPoints(points []float32)
}

// SpeedSetter is implemented by handles that track the reported body speed.
type SpeedSetter interface {
	SetSpeed(speed float64)
}

// Node is a minimal scene node usable as a Handle.
type Node struct {
	mu     sync.RWMutex
	name   string
	pose   body.Pose
	speed  float64
	wheels []body.Pose
	points []float32
}

func NewNode(name string, pose body.Pose) *Node {
	return &Node{name: name, pose: pose.Normalized()}
}

func (n *Node) Name() string { return n.name }

func (n *Node) Position() mgl64.Vec3 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pose.Position
}

func (n *Node) Orientation() mgl64.Quat {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pose.Orientation
}

func (n *Node) Pose() body.Pose {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pose
}

func (n *Node) SetPosition(p mgl64.Vec3) {
	n.mu.Lock()
	n.pose.Position = p
	n.mu.Unlock()
}

func (n *Node) SetOrientation(q mgl64.Quat) {
	n.mu.Lock()
	n.pose.Orientation = q
	n.mu.Unlock()
}

func (n *Node) SetSpeed(speed float64) {
	n.mu.Lock()
	n.speed = speed
	n.mu.Unlock()
}

func (n *Node) Speed() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.speed
}

func (n *Node) SetWheel(i int, spin float64, pose body.Pose) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.wheels) <= i {
		n.wheels = append(n.wheels, body.IdentityPose())
	}
	n.wheels[i] = pose
}

func (n *Node) Wheels() []body.Pose {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]body.Pose(nil), n.wheels...)
}

func (n *Node) SetPoints(points []float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.points) != len(points) {
		n.points = make([]float32, len(points))
	}
	copy(n.points, points)
}

func (n *Node) Points() []float32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]float32(nil), n.points...)
}
