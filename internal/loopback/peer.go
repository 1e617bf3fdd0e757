// Package loopback is an in-process simulation peer that speaks the bridge
// protocol. Its physics is deliberately trivial: free fall with a bouncing
// ground plane, and ground impacts that raise break requests.
package loopback

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/transport"
)

// Revision is reported in Ready.
const Revision = "loopback-1"

type Peer struct {
	ep     transport.Endpoint
	logger *log.Logger

	layout   layout.Layout
	transfer bool
	buffer   *layout.Buffer
	world    *world
}

func New(ep transport.Endpoint, logger *log.Logger) *Peer {
	if logger == nil {
		logger = log.Default()
	}
	return &Peer{
		ep:     ep,
		logger: logger.WithPrefix("loopback"),
		world:  newWorld(protocol.DefaultOptions()),
	}
}

// Run handles messages until the link closes or ctx is done.
func (p *Peer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ep.Done():
			return nil
		case m := <-p.ep.Messages():
			if err := p.handle(m); err != nil {
				p.logger.Warn("emit failed", "tag", m.Tag(), "err", err)
			}
		}
	}
}

func (p *Peer) handle(m protocol.Message) error {
	switch m := m.(type) {
	case protocol.Probe:
		p.logger.Debug("probe", "transferred", m.Buffer != nil)
	case protocol.Init:
		p.layout = m.Layout
		p.transfer = m.Transfer
		p.world = newWorld(m.Options.WithDefaults())
		if !m.Transfer {
			p.buffer = layout.NewBuffer(m.Layout.Total)
		}
		p.logger.Info("init", "buffer", m.Layout.Total, "transfer", m.Transfer, "runtime", len(m.Runtime))
		return p.ep.Emit(protocol.Ready{Revision: Revision, Transfer: m.Transfer})
	case protocol.Start:
		p.logger.Debug("start")
	case protocol.Step:
		return p.step(m)
	case protocol.SetOption:
		p.world.options = p.world.options.Apply(m.Patch)
	case protocol.Reset:
		if !m.Full {
			p.world.clearDynamic()
			break
		}
		p.world.clear()
		if !p.transfer {
			p.buffer = layout.NewBuffer(p.layout.Total)
		}
	case protocol.Command:
		return p.command(m)
	case protocol.AddObject:
		p.world.add(m.Descriptor)
	case protocol.RemoveObject:
		p.world.remove(m.Name)
	case protocol.RayCast:
		return p.ep.Emit(protocol.RayCastResult{ID: m.ID, Hits: p.world.rayCast(m)})
	}
	return nil
}

func (p *Peer) step(m protocol.Step) error {
	buf := m.Buffer
	if buf == nil {
		buf = p.buffer
	}
	if buf == nil {
		buf = layout.NewBuffer(p.layout.Total)
		p.buffer = buf
	}
	for _, req := range p.world.step(m.Delta) {
		if err := p.ep.Emit(req); err != nil {
			return err
		}
	}
	p.world.write(buf, p.layout)
	return p.ep.Emit(protocol.StepDone{Buffer: buf})
}

func (p *Peer) command(c protocol.Command) error {
	switch c.Kind {
	case protocol.CmdMatrix:
		mx, err := protocol.DecodePayload[protocol.Matrix](c)
		if err != nil {
			return err
		}
		obj, ok := p.world.objects[mx.Name]
		if !ok {
			return nil
		}
		if mx.Position != nil {
			obj.st.pos = *mx.Position
		}
		if mx.Orientation != nil {
			obj.quat = *mx.Orientation
		}
		if !mx.KeepVelocity {
			obj.st.vel = obj.st.vel.Mul(0)
		}
		pos, quat := obj.st.pos, obj.quat
		return p.ep.Emit(protocol.PoseUpdate{Name: mx.Name, Position: &pos, Orientation: &quat})
	case protocol.CmdForces:
		f, err := protocol.DecodePayload[protocol.Force](c)
		if err != nil {
			return err
		}
		if obj, ok := p.world.objects[f.Name]; ok {
			obj.impulse = obj.impulse.Add(f.Impulse)
		}
	case protocol.CmdRemove:
		r, err := protocol.DecodePayload[protocol.Removal](c)
		if err != nil {
			return err
		}
		for _, name := range r.Names {
			p.world.remove(name)
		}
	case protocol.CmdBreakable:
		b, err := protocol.DecodePayload[protocol.Breakable](c)
		if err != nil {
			return err
		}
		if obj, ok := p.world.objects[b.Name]; ok {
			opts := b.Options
			obj.d.Breakable = true
			obj.d.Break = &opts
		}
	default:
		p.logger.Debug("ignoring command", "kind", c.Kind)
	}
	return nil
}
