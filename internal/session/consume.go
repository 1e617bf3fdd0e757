package session

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/fracture"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/registry"
)

// record layouts inside a slot
const (
	poseRecord  = 8 // speed, px, py, pz, qx, qy, qz, qw
	wheelRecord = 8 // spin, px, py, pz, qx, qy, qz, qw
)

func (s *Session) onReady(ev protocol.Ready) {
	s.mu.Lock()
	if st := s.state; st != HandshakePending {
		s.mu.Unlock()
		s.logger.Debug("ignoring ready", "state", st)
		return
	}
	s.state = Ready
	s.image = nil
	s.mu.Unlock()

	s.logger.Info("ready", "revision", ev.Revision)
	s.readyOnce.Do(func() {
		close(s.ready)
		if s.cfg.OnReady != nil {
			s.cfg.OnReady()
		}
	})
}

// onReclaim takes the shared buffer back before any StepDone handler runs.
func (s *Session) onReclaim(buf *layout.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Terminated:
	case s.buffer == nil:
		s.buffer = layout.Wrap(buf.Detach())
	case s.mode == ZeroCopy:
		s.buffer.Attach(buf.Detach())
	default:
		s.buffer.CopyFrom(buf.Data())
	}
}

func (s *Session) onStepDone(protocol.StepDone) {
	s.mu.Lock()
	if s.state == Terminated || s.buffer == nil {
		s.mu.Unlock()
		return
	}
	var tracks [layout.NumCategories][]tracked
	for i := range s.tracks {
		tracks[i] = append([]tracked(nil), s.tracks[i]...)
	}
	buf, l, post := s.buffer, s.layout, s.postUpdate
	s.mu.Unlock()

	s.consumePoses(buf.Slice(l.Slot(layout.RigidBody)), tracks[layout.RigidBody])
	s.consumeContacts(buf.Slice(l.Slot(layout.Contact)), tracks[layout.Contact])
	s.consumePoses(buf.Slice(l.Slot(layout.Character)), tracks[layout.Character])
	s.consumeVehicles(buf.Slice(l.Slot(layout.Vehicle)), tracks[layout.Vehicle])
	s.consumeSoft(buf.Slice(l.Slot(layout.SoftBodyPoint)), tracks[layout.SoftBodyPoint])

	if post != nil {
		post(s.scheduler.Delta())
	}
	s.scheduler.StepDone()
}

func poseAt(rec []float32) body.Pose {
	return body.Pose{
		Position: mgl64.Vec3{float64(rec[0]), float64(rec[1]), float64(rec[2])},
		Orientation: mgl64.Quat{
			W: float64(rec[6]),
			V: mgl64.Vec3{float64(rec[3]), float64(rec[4]), float64(rec[5])},
		},
	}
}

func (s *Session) applyRecord(name string, rec []float32) (registry.Handle, bool) {
	h, ok := s.registry.Handle(name)
	if !ok {
		return nil, false
	}
	if ss, ok := h.(registry.SpeedSetter); ok {
		ss.SetSpeed(float64(rec[0]))
	}
	pose := poseAt(rec[1:])
	s.registry.ApplyPose(name, &pose.Position, &pose.Orientation)
	return h, true
}

// consumePoses applies rigid-body and character records. A negative speed
// marks a sleeping body whose pose is unchanged.
func (s *Session) consumePoses(data []float32, tracks []tracked) {
	for i, t := range tracks {
		off := i * poseRecord
		if off+poseRecord > len(data) {
			return
		}
		rec := data[off : off+poseRecord]
		if rec[0] < 0 {
			continue
		}
		s.applyRecord(t.name, rec)
	}
}

func (s *Session) consumeContacts(data []float32, tracks []tracked) {
	if s.cfg.OnContact == nil {
		return
	}
	for i, t := range tracks {
		if i >= len(data) {
			return
		}
		s.cfg.OnContact(t.name, data[i] > 0)
	}
}

func (s *Session) consumeVehicles(data []float32, tracks []tracked) {
	stride := layout.Vehicle.Stride()
	for i, t := range tracks {
		off := i * stride
		if off+stride > len(data) {
			return
		}
		rec := data[off : off+stride]
		h, ok := s.applyRecord(t.name, rec[:poseRecord])
		if !ok {
			continue
		}
		ws, ok := h.(registry.WheelSetter)
		if !ok {
			continue
		}
		for w := 0; w < t.count; w++ {
			wr := rec[poseRecord+w*wheelRecord : poseRecord+(w+1)*wheelRecord]
			ws.SetWheel(w, float64(wr[0]), poseAt(wr[1:]))
		}
	}
}

// consumeSoft hands each soft body its contiguous run of points.
func (s *Session) consumeSoft(data []float32, tracks []tracked) {
	stride := layout.SoftBodyPoint.Stride()
	off := 0
	for _, t := range tracks {
		n := t.count * stride
		if n <= 0 {
			continue
		}
		if off+n > len(data) {
			return
		}
		run := data[off : off+n]
		off += n
		h, ok := s.registry.Handle(t.name)
		if !ok {
			continue
		}
		if ps, ok := h.(registry.PointSetter); ok {
			ps.SetPoints(run)
		}
	}
}

func (s *Session) onPose(ev protocol.PoseUpdate) {
	s.registry.ApplyPose(ev.Name, ev.Position, ev.Orientation)
}

// onEllipsoid registers a soft body the simulation side already built.
func (s *Session) onEllipsoid(ev protocol.EllipsoidRequest) {
	if ev.Points < 0 {
		s.logger.Warn("ellipsoid with negative point count", "name", ev.Name, "points", ev.Points)
		return
	}
	d := body.Descriptor{
		Name:  ev.Name,
		Type:  "softEllipsoid",
		Shape: body.Shape{Size: ev.Radius},
		Pose:  body.Pose{Position: ev.Center, Orientation: mgl64.QuatIdent()},
		Mass:  ev.Mass,
		Extra: map[string]any{"points": ev.Points},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return
	}
	s.track(d)
}

func (s *Session) onBreak(ev protocol.BreakRequest) {
	_, err := s.fracture.Break(fracture.Impact{
		Name:            ev.Name,
		Point:           ev.Point,
		Normal:          ev.Normal,
		Options:         ev.Options,
		LinearVelocity:  ev.LinearVelocity,
		AngularVelocity: ev.AngularVelocity,
	})
	if err != nil {
		s.logger.Warn("break failed", "name", ev.Name, "err", err)
	}
}

func (s *Session) onRayResult(ev protocol.RayCastResult) {
	s.mu.Lock()
	done, ok := s.rays[ev.ID]
	delete(s.rays, ev.ID)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("ray result without caller", "id", ev.ID)
		return
	}
	done(ev.Hits)
}
