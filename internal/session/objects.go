package session

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/transport"
)

// link returns the transport if messages may be sent.
func (s *Session) link() (transport.Transport, error) {
	switch s.state {
	case Uninitialized, Loading:
		return nil, bridge.ErrNotReady
	case Terminated:
		return nil, bridge.ErrTerminated
	}
	return s.transport, nil
}

// Add registers the object on the consumer side and forwards it to the
// simulation side. An unrecognized type is rejected before anything is
// registered or sent.
func (s *Session) Add(d body.Descriptor) error {
	kind, err := d.Kind()
	if err != nil {
		s.logger.Warn("rejecting object", "name", d.Name, "type", d.Type)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.link()
	if err != nil {
		return err
	}
	if d.Name == "" {
		d.Name = fmt.Sprintf("%s%d", kind, s.nextName)
		s.nextName++
	}
	d.Pose = d.Pose.Normalized()
	if d.Breakable && d.Break == nil {
		opts := body.DefaultBreakOptions()
		d.Break = &opts
	}

	if kind != body.KindJoint {
		s.track(d)
	}
	return tr.Post(protocol.AddObject{Descriptor: d})
}

// AddGroup adds each descriptor in order. Every descriptor is attempted; the
// first error is returned.
func (s *Session) AddGroup(ds []body.Descriptor) error {
	var first error
	for _, d := range ds {
		if err := s.Add(d); err != nil && first == nil {
			first = fmt.Errorf("add %q: %w", d.Name, err)
		}
	}
	return first
}

// track registers d locally and appends it to its slot's record order.
// Caller holds s.mu.
func (s *Session) track(d body.Descriptor) {
	s.registry.Register(d.Name, s.cfg.NewHandle(d), d)
	s.untrack(d.Name)

	cat, ok := d.Category()
	if !ok {
		return
	}
	count := 1
	switch cat {
	case layout.SoftBodyPoint:
		count = d.Points()
	case layout.Vehicle:
		count = d.Wheels()
	}
	s.tracks[cat] = append(s.tracks[cat], tracked{name: d.Name, count: count})
}

func (s *Session) untrack(name string) {
	for i := range s.tracks {
		s.tracks[i] = slices.DeleteFunc(s.tracks[i], func(t tracked) bool { return t.name == name })
	}
}

// Remove forgets the object locally and tells the simulation side. An unknown
// name is not an error.
func (s *Session) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.link()
	if err != nil {
		return err
	}
	if !s.registry.Unregister(name) {
		s.logger.Debug("remove of unknown object", "name", name)
	}
	s.untrack(name)
	return tr.Post(protocol.RemoveObject{Name: name})
}

// SetOption patches the live options. A new fps applies from the next Start.
func (s *Session) SetOption(p protocol.OptionPatch) error {
	s.mu.Lock()
	tr, err := s.link()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg.Options = s.cfg.Options.Apply(p)
	fps := s.cfg.Options.FPS
	s.mu.Unlock()

	if p.FPS != nil {
		s.scheduler.SetFPS(fps)
	}
	return tr.Post(protocol.SetOption{Patch: p})
}

func (s *Session) Options() protocol.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Options
}

// Command sends a fire-and-forget passthrough command.
func (s *Session) Command(kind protocol.CommandKind, payload any) error {
	cmd, err := protocol.NewCommand(kind, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	s.mu.Lock()
	tr, err := s.link()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if kind == protocol.CmdBreakable {
		s.markBreakable(cmd)
	}
	return tr.Post(cmd)
}

// markBreakable mirrors an addBreakable command into the registry before it
// is sent, so the fracture engine accepts the break requests that follow.
func (s *Session) markBreakable(cmd protocol.Command) {
	b, err := protocol.DecodePayload[protocol.Breakable](cmd)
	if err != nil {
		s.logger.Warn("bad addBreakable payload", "err", err)
		return
	}
	opts := b.Options
	if !s.registry.Update(b.Name, func(d *body.Descriptor) {
		d.Breakable = true
		d.Break = &opts
	}) {
		s.logger.Debug("addBreakable for unknown object", "name", b.Name)
	}
}

// RayCast queries the simulation side. done receives the hits when the
// result arrives; it is dropped by Reset.
func (s *Session) RayCast(origin, direction mgl64.Vec3, filters []string, done func([]protocol.Hit)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.link()
	if err != nil {
		return 0, err
	}
	s.nextRay++
	id := s.nextRay
	if done != nil {
		s.rays[id] = done
	}
	if err := tr.Post(protocol.RayCast{ID: id, Origin: origin, Direction: direction, Filters: filters}); err != nil {
		delete(s.rays, id)
		return 0, err
	}
	return id, nil
}
