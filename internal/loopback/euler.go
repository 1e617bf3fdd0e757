package loopback

import "github.com/go-gl/mathgl/mgl64"

// state is a body's position and velocity.
type state struct {
	pos mgl64.Vec3
	vel mgl64.Vec3
}

// derivative of a free body under constant acceleration.
func derivative(x state, accel mgl64.Vec3) state {
	return state{pos: x.vel, vel: accel}
}

// euler advances x by dt with one explicit Euler step.
func euler(x state, accel mgl64.Vec3, dt float64) state {
	dx := derivative(x, accel)
	return state{
		pos: x.pos.Add(dx.pos.Mul(dt)),
		vel: x.vel.Add(dx.vel.Mul(dt)),
	}
}
