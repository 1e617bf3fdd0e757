package loopback

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/gomega"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/transport"
)

func startPeer(t *testing.T, transfer bool) *transport.Pipe {
	t.Helper()
	host, ep := transport.NewPipe(transfer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		host.Close()
	})
	go New(ep, nil).Run(ctx)
	return host
}

func next(t *testing.T, host *transport.Pipe) protocol.Event {
	t.Helper()
	select {
	case ev := <-host.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestReadyOnInit(t *testing.T) {
	g := NewWithT(t)
	host := startPeer(t, false)

	g.Expect(host.Post(protocol.Init{Layout: layout.Plan(layout.Capacity{MaxBody: 2})})).To(Succeed())
	ev := next(t, host)
	g.Expect(ev).To(Equal(protocol.Ready{Revision: Revision}))
}

func TestStepWritesRigidRecords(t *testing.T) {
	g := NewWithT(t)
	host := startPeer(t, true)
	l := layout.Plan(layout.Capacity{MaxBody: 2})

	g.Expect(host.Post(protocol.Init{Layout: l, Transfer: true, Options: protocol.Options{Substep: 1}})).To(Succeed())
	next(t, host)

	g.Expect(host.Post(protocol.AddObject{Descriptor: body.Descriptor{
		Name: "ball", Type: "sphere", Mass: 1,
		Shape: body.Shape{Size: mgl64.Vec3{0.5, 0, 0}},
		Pose:  body.Pose{Position: mgl64.Vec3{0, 10, 0}},
	}})).To(Succeed())

	buf := layout.NewBuffer(l.Total)
	g.Expect(host.Post(protocol.Step{Delta: 0.1, Buffer: buf})).To(Succeed())
	g.Expect(buf.Detached()).To(BeTrue())

	done, ok := next(t, host).(protocol.StepDone)
	g.Expect(ok).To(BeTrue())
	rec := done.Buffer.Slice(l.Slot(layout.RigidBody))[:8]
	// one Euler step: position moves with the old velocity, velocity gains g·dt
	g.Expect(rec[0]).To(BeNumerically("~", 1, 1e-5))
	g.Expect(rec[2]).To(BeNumerically("~", 10, 1e-5))
	g.Expect(rec[7]).To(BeNumerically("~", 1, 1e-6))
}

func TestHardImpactRaisesBreak(t *testing.T) {
	g := NewWithT(t)
	host := startPeer(t, false)
	l := layout.Plan(layout.Capacity{MaxBody: 4})

	g.Expect(host.Post(protocol.Init{Layout: l})).To(Succeed())
	next(t, host)

	opts := body.BreakOptions{MaxImpulse: 5, MaxRadial: 1, MaxRandom: 0, SubdivisionLevel: 1}
	g.Expect(host.Post(protocol.AddObject{Descriptor: body.Descriptor{
		Name: "vase", Type: "box", Mass: 10,
		Shape:          body.Shape{Size: mgl64.Vec3{1, 1, 1}},
		Pose:           body.Pose{Position: mgl64.Vec3{0, 0.55, 0}},
		LinearVelocity: mgl64.Vec3{0, -5, 0},
		Breakable:      true,
		Break:          &opts,
	}})).To(Succeed())
	g.Expect(host.Post(protocol.Step{Delta: 0.05})).To(Succeed())

	brk, ok := next(t, host).(protocol.BreakRequest)
	g.Expect(ok).To(BeTrue())
	g.Expect(brk.Name).To(Equal("vase"))
	g.Expect(brk.Normal).To(Equal(mgl64.Vec3{0, 1, 0}))
	g.Expect(brk.Options).To(Equal(opts))

	done, ok := next(t, host).(protocol.StepDone)
	g.Expect(ok).To(BeTrue())
	g.Expect(done.Buffer.Slice(l.Slot(layout.RigidBody))[0]).To(Equal(float32(-1)))
}

func TestSetMatrixEmitsPose(t *testing.T) {
	g := NewWithT(t)
	host := startPeer(t, false)

	g.Expect(host.Post(protocol.Init{Layout: layout.Plan(layout.Capacity{MaxBody: 1})})).To(Succeed())
	next(t, host)
	g.Expect(host.Post(protocol.AddObject{Descriptor: body.Descriptor{Name: "crate", Type: "box", Mass: 1}})).To(Succeed())

	pos := mgl64.Vec3{3, 4, 5}
	cmd, err := protocol.NewCommand(protocol.CmdMatrix, protocol.Matrix{Name: "crate", Position: &pos})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(host.Post(cmd)).To(Succeed())

	up, ok := next(t, host).(protocol.PoseUpdate)
	g.Expect(ok).To(BeTrue())
	g.Expect(up.Name).To(Equal("crate"))
	g.Expect(*up.Position).To(Equal(pos))
}

func TestRayCastHitsNearestFirst(t *testing.T) {
	g := NewWithT(t)
	host := startPeer(t, false)

	g.Expect(host.Post(protocol.Init{Layout: layout.Plan(layout.Capacity{})})).To(Succeed())
	next(t, host)
	for i, x := range []float64{10, 5} {
		g.Expect(host.Post(protocol.AddObject{Descriptor: body.Descriptor{
			Name:  []string{"far", "near"}[i],
			Type:  "sphere",
			Shape: body.Shape{Size: mgl64.Vec3{1, 0, 0}},
			Pose:  body.Pose{Position: mgl64.Vec3{x, 0, 0}},
		}})).To(Succeed())
	}
	g.Expect(host.Post(protocol.RayCast{ID: 7, Direction: mgl64.Vec3{1, 0, 0}})).To(Succeed())

	res, ok := next(t, host).(protocol.RayCastResult)
	g.Expect(ok).To(BeTrue())
	g.Expect(res.ID).To(Equal(7))
	g.Expect(res.Hits).To(HaveLen(2))
	g.Expect(res.Hits[0].Name).To(Equal("near"))
	g.Expect(res.Hits[0].Distance).To(BeNumerically("~", 4, 1e-9))
}

func TestSoftResetKeepsStaticObjects(t *testing.T) {
	g := NewWithT(t)
	host := startPeer(t, false)

	g.Expect(host.Post(protocol.Init{Layout: layout.Plan(layout.Capacity{MaxBody: 2})})).To(Succeed())
	next(t, host)
	for _, d := range []body.Descriptor{
		{Name: "wall", Type: "sphere", Shape: body.Shape{Size: mgl64.Vec3{1, 0, 0}}, Pose: body.Pose{Position: mgl64.Vec3{10, 0, 0}}},
		{Name: "ball", Type: "sphere", Mass: 1, Shape: body.Shape{Size: mgl64.Vec3{1, 0, 0}}, Pose: body.Pose{Position: mgl64.Vec3{5, 0, 0}}},
	} {
		g.Expect(host.Post(protocol.AddObject{Descriptor: d})).To(Succeed())
	}

	cast := func(id int) []protocol.Hit {
		g.Expect(host.Post(protocol.RayCast{ID: id, Direction: mgl64.Vec3{1, 0, 0}})).To(Succeed())
		res, ok := next(t, host).(protocol.RayCastResult)
		g.Expect(ok).To(BeTrue())
		g.Expect(res.ID).To(Equal(id))
		return res.Hits
	}
	g.Expect(cast(1)).To(HaveLen(2))

	g.Expect(host.Post(protocol.Reset{Full: false})).To(Succeed())
	hits := cast(2)
	g.Expect(hits).To(HaveLen(1))
	g.Expect(hits[0].Name).To(Equal("wall"))

	g.Expect(host.Post(protocol.Reset{Full: true})).To(Succeed())
	g.Expect(cast(3)).To(BeEmpty())
}
