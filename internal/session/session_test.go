package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/registry"
	"github.com/san-kum/simbridge/internal/transport"
)

var _ = Describe("Session", func() {
	var (
		clock   *manualClock
		spawner *pipeSpawner
		readies atomic.Int32
		s       *Session
		cfg     Config
	)

	BeforeEach(func() {
		clock = newManualClock()
		spawner = &pipeSpawner{transfer: true}
		readies.Store(0)
		cfg = Config{
			Options:  protocol.DefaultOptions(),
			Capacity: layout.Capacity{MaxBody: 4, MaxContact: 2, MaxCharacter: 1, MaxCar: 1, MaxSoftPoint: 8},
			Loader:   testImage,
			Spawner:  spawner,
			Clock:    clock,
			Seed:     1,
			OnReady:  func() { readies.Add(1) },
		}
	})

	JustBeforeEach(func() {
		s = New(cfg)
	})

	AfterEach(func() {
		s.Destroy()
	})

	handshake := func() {
		Expect(s.Init(context.Background())).To(Succeed())
		Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.Probe{}))
		Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.Init{}))
		spawner.emit(protocol.Ready{Revision: "test"})
		Expect(s.WaitReady(context.Background())).To(Succeed())
	}

	running := func() {
		handshake()
		Expect(s.Start()).To(Succeed())
		Expect(spawner.next()).To(Equal(protocol.Start{}))
	}

	Describe("Init", func() {
		Context("when the runtime image cannot be loaded", func() {
			BeforeEach(func() { cfg.Loader = failingLoader{} })

			It("surfaces a setup fault and stays uninitialized", func() {
				err := s.Init(context.Background())
				Expect(errors.Is(err, bridge.ErrRuntimeUnavailable)).To(BeTrue())
				Expect(s.State()).To(Equal(Uninitialized))
			})
		})

		Context("when the simulation side cannot be spawned", func() {
			BeforeEach(func() { spawner.err = errors.New("no worker") })

			It("surfaces a setup fault and stays uninitialized", func() {
				err := s.Init(context.Background())
				Expect(errors.Is(err, bridge.ErrRuntimeUnavailable)).To(BeTrue())
				Expect(s.State()).To(Equal(Uninitialized))
			})
		})

		Context("over a link that sends undecodable frames", func() {
			BeforeEach(func() {
				server, url := garbageServer()
				DeferCleanup(server.Close)
				cfg.Spawner = transport.Dialer{URL: url}
			})

			It("counts them as dropped without failing the handshake", func() {
				Expect(s.Init(context.Background())).To(Succeed())
				Expect(s.Mode()).To(Equal(DeepCopy))
				Eventually(func() uint64 { return s.Stats().Dropped }).Should(Equal(uint64(2)))
				Expect(s.State()).To(Equal(HandshakePending))
			})
		})

		Context("when the simulation side is gone before init is sent", func() {
			BeforeEach(func() { spawner.dead = true })

			It("surfaces a setup fault, releases the link and can retry", func() {
				err := s.Init(context.Background())
				Expect(errors.Is(err, bridge.ErrRuntimeUnavailable)).To(BeTrue())
				Expect(errors.Is(err, bridge.ErrTransportClosed)).To(BeTrue())
				Expect(s.State()).To(Equal(Uninitialized))
				Expect(errors.Is(s.Start(), bridge.ErrNotReady)).To(BeTrue())
				Expect(errors.Is(s.WaitReady(context.Background()), bridge.ErrNotReady)).To(BeTrue())

				spawner.dead = false
				Expect(s.Init(context.Background())).To(Succeed())
				Expect(s.State()).To(Equal(HandshakePending))
			})
		})

		It("probes transfer support and sends the layout", func() {
			Expect(s.Init(context.Background())).To(Succeed())
			Expect(s.State()).To(Equal(HandshakePending))
			Expect(s.Mode()).To(Equal(ZeroCopy))

			Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.Probe{}))
			init, ok := spawner.next().(protocol.Init)
			Expect(ok).To(BeTrue())
			Expect(init.Transfer).To(BeTrue())
			Expect(init.Layout).To(Equal(layout.Plan(cfg.Capacity)))
			Expect(init.Runtime).To(Equal(testImage.Image.Data))
		})

		Context("over a copying link", func() {
			BeforeEach(func() { spawner.transfer = false })

			It("settles on deep copy", func() {
				Expect(s.Init(context.Background())).To(Succeed())
				Expect(s.Mode()).To(Equal(DeepCopy))
			})
		})

		It("rejects a second init", func() {
			Expect(s.Init(context.Background())).To(Succeed())
			Expect(errors.Is(s.Init(context.Background()), bridge.ErrInvalidState)).To(BeTrue())
		})
	})

	Describe("handshake", func() {
		It("refuses to start before ready", func() {
			Expect(s.Init(context.Background())).To(Succeed())
			Expect(errors.Is(s.Start(), bridge.ErrNotReady)).To(BeTrue())
		})

		It("fires the ready callback exactly once", func() {
			handshake()
			spawner.emit(protocol.Ready{Revision: "again"})
			Consistently(readies.Load, "50ms").Should(Equal(int32(1)))
			Expect(s.State()).To(Equal(Ready))
		})

		It("ignores a late ready racing with destroy", func() {
			handshake()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for range 20 {
					_ = spawner.ep.Emit(protocol.Ready{Revision: "late"})
				}
			}()
			s.Destroy()
			Eventually(done).Should(BeClosed())
			Expect(readies.Load()).To(Equal(int32(1)))
			Expect(s.State()).To(Equal(Terminated))
		})
	})

	Describe("stepping", func() {
		It("keeps at most one step in flight", func() {
			running()

			clock.Fire()
			step, ok := spawner.next().(protocol.Step)
			Expect(ok).To(BeTrue())
			Expect(step.Input).To(HaveLen(protocol.InputSize))
			Expect(step.Buffer).NotTo(BeNil())
			Expect(step.Buffer.Len()).To(Equal(layout.Plan(cfg.Capacity).Total))

			clock.Fire()
			Eventually(func() uint64 { return s.Stats().Skipped }).Should(Equal(uint64(1)))
			spawner.quiet()
			Expect(s.Stats().Sent).To(Equal(uint64(1)))
			Expect(s.Motion()).To(BeNil())

			spawner.emit(protocol.StepDone{Buffer: step.Buffer})
			Eventually(func() bool { return s.Stats().InFlight }).Should(BeFalse())
			clock.Fire()
			Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.Step{}))
		})

		It("applies slot records to registered objects", func() {
			var contacts atomic.Int32
			cfg.OnContact = func(name string, touching bool) {
				if name == "sensor" && touching {
					contacts.Add(1)
				}
			}
			s = New(cfg)
			running()

			Expect(s.Add(body.Descriptor{Name: "crate", Type: "box", Mass: 1})).To(Succeed())
			Expect(s.Add(body.Descriptor{Name: "floor", Type: "box"})).To(Succeed())
			Expect(s.Add(body.Descriptor{Name: "sleeper", Type: "box", Mass: 1,
				Pose: body.Pose{Position: mgl64.Vec3{9, 9, 9}}})).To(Succeed())
			Expect(s.Add(body.Descriptor{Name: "sensor", Type: "collision"})).To(Succeed())
			Expect(s.Add(body.Descriptor{Name: "cloth", Type: "softCloth", Extra: map[string]any{"points": 2}})).To(Succeed())
			for range 5 {
				spawner.next()
			}

			clock.Fire()
			step := spawner.next().(protocol.Step)
			l := layout.Plan(cfg.Capacity)
			rigid := step.Buffer.Slice(l.Slot(layout.RigidBody))
			copy(rigid, []float32{2, 1, 2, 3, 0, 0, 0, 1})
			copy(rigid[8:], []float32{-1, 0, 0, 0, 0, 0, 0, 1})
			step.Buffer.Slice(l.Slot(layout.Contact))[0] = 1
			copy(step.Buffer.Slice(l.Slot(layout.SoftBodyPoint)), []float32{1, 1, 1, 2, 2, 2})
			spawner.emit(protocol.StepDone{Buffer: step.Buffer})

			cloth, _ := s.Registry().Handle("cloth")
			Eventually(cloth.(*registry.Node).Points).Should(Equal([]float32{1, 1, 1, 2, 2, 2}))

			crate, _ := s.Registry().Handle("crate")
			Expect(crate.Position()).To(Equal(mgl64.Vec3{1, 2, 3}))
			Expect(crate.(*registry.Node).Speed()).To(Equal(2.0))

			sleeper, _ := s.Registry().Handle("sleeper")
			Expect(sleeper.Position()).To(Equal(mgl64.Vec3{9, 9, 9}))
			Expect(contacts.Load()).To(Equal(int32(1)))

			motion := s.Motion()
			Expect(motion).To(HaveKeyWithValue("crate", 2.0))
			Expect(motion).To(HaveKeyWithValue("sleeper", -1.0))
			Expect(motion).NotTo(HaveKey("cloth"))
		})

		It("survives soft bodies with a negative point count", func() {
			running()
			Expect(s.Add(body.Descriptor{Name: "bad", Type: "softCloth", Extra: map[string]any{"points": -2}})).To(Succeed())
			spawner.emit(protocol.EllipsoidRequest{Name: "blob", Radius: mgl64.Vec3{1, 1, 1}, Points: -2, Mass: 1})
			Expect(s.Add(body.Descriptor{Name: "cloth", Type: "softCloth", Extra: map[string]any{"points": 1}})).To(Succeed())
			spawner.next()
			spawner.next()

			clock.Fire()
			step := spawner.next().(protocol.Step)
			l := layout.Plan(cfg.Capacity)
			copy(step.Buffer.Slice(l.Slot(layout.SoftBodyPoint)), []float32{4, 5, 6})
			spawner.emit(protocol.StepDone{Buffer: step.Buffer})

			cloth, _ := s.Registry().Handle("cloth")
			Eventually(cloth.(*registry.Node).Points).Should(Equal([]float32{4, 5, 6}))
			Expect(s.Has("blob")).To(BeFalse())
			Expect(s.State()).To(Equal(Running))
		})

		It("runs the post-update hook after each step", func() {
			running()
			var calls atomic.Int32
			s.OnPostUpdate(func(float64) { calls.Add(1) })

			clock.Fire()
			step := spawner.next().(protocol.Step)
			spawner.emit(protocol.StepDone{Buffer: step.Buffer})
			Eventually(calls.Load).Should(Equal(int32(1)))
		})

		It("carries the input vector", func() {
			cfg.Input = InputFunc(func() []float64 { return []float64{1, 0, 1} })
			s = New(cfg)
			running()

			clock.Fire()
			step := spawner.next().(protocol.Step)
			Expect(step.Input).To(Equal([]float64{1, 0, 1, 0, 0, 0, 0, 0}))
		})

		It("pauses idempotently and resumes", func() {
			running()
			s.Pause()
			s.Pause()
			Expect(s.State()).To(Equal(Paused))
			Expect(clock.Tickers()[0].Stopped()).To(BeTrue())

			Expect(s.Resume()).To(Succeed())
			Expect(s.State()).To(Equal(Running))
			Expect(clock.Tickers()).To(HaveLen(2))
		})
	})

	Describe("Reset", func() {
		It("stops ticking, empties the registry and restarts from a fresh time", func() {
			running()
			Expect(s.Add(body.Descriptor{Name: "crate", Type: "box", Mass: 1})).To(Succeed())
			spawner.next()
			s.OnPostUpdate(func(float64) {})

			clock.Advance(5 * time.Second)
			Expect(s.Reset(true)).To(Succeed())
			Expect(s.State()).To(Equal(Resetting))
			Expect(s.Registry().Len()).To(BeZero())
			Expect(clock.Tickers()[0].Stopped()).To(BeTrue())
			Expect(spawner.next()).To(Equal(protocol.Reset{Full: true}))

			Expect(s.Start()).To(Succeed())
			Expect(spawner.next()).To(Equal(protocol.Start{}))
			clock.Advance(20 * time.Millisecond)
			clock.Fire()
			step := spawner.next().(protocol.Step)
			Expect(step.Delta).To(BeNumerically("~", 0.02, 1e-9))
			Expect(s.State()).To(Equal(Running))
		})
	})

	Describe("objects", func() {
		BeforeEach(func() { spawner.transfer = false })

		It("rejects an unrecognized type without registering or sending it", func() {
			handshake()
			err := s.Add(body.Descriptor{Name: "ufo", Type: "spaceship"})
			Expect(errors.Is(err, bridge.ErrUnknownKind)).To(BeTrue())
			_, ok := s.Registry().Lookup("ufo")
			Expect(ok).To(BeFalse())
			spawner.quiet()
		})

		It("routes family prefixes and passes joints through", func() {
			handshake()
			Expect(s.Add(body.Descriptor{Name: "hinge", Type: "jointHinge"})).To(Succeed())
			Expect(s.Add(body.Descriptor{Name: "rope", Type: "softRope"})).To(Succeed())

			add := spawner.next().(protocol.AddObject)
			Expect(add.Descriptor.Name).To(Equal("hinge"))
			_, ok := s.Registry().Lookup("hinge")
			Expect(ok).To(BeFalse())

			spawner.next()
			_, ok = s.Registry().Lookup("rope")
			Expect(ok).To(BeTrue())
		})

		It("adds groups and reports the first failure", func() {
			handshake()
			err := s.AddGroup([]body.Descriptor{
				{Name: "a", Type: "box"},
				{Name: "b", Type: "bogus"},
				{Name: "c", Type: "sphere"},
			})
			Expect(errors.Is(err, bridge.ErrUnknownKind)).To(BeTrue())
			Expect(s.Registry().Names()).To(Equal([]string{"a", "c"}))
		})

		It("names anonymous objects", func() {
			handshake()
			Expect(s.Add(body.Descriptor{Type: "box"})).To(Succeed())
			add := spawner.next().(protocol.AddObject)
			Expect(add.Descriptor.Name).To(HavePrefix("rigid"))
		})

		It("treats removal of an unknown name as benign", func() {
			handshake()
			Expect(s.Remove("ghost")).To(Succeed())
			Expect(spawner.next()).To(Equal(protocol.RemoveObject{Name: "ghost"}))
		})

		It("ignores poses for retired names and applies the rest", func() {
			handshake()
			Expect(s.Add(body.Descriptor{Name: "crate", Type: "box"})).To(Succeed())
			pos := mgl64.Vec3{0, 7, 0}
			spawner.emit(protocol.PoseUpdate{Name: "ghost", Position: &pos})
			spawner.emit(protocol.PoseUpdate{Name: "crate", Position: &pos})

			h, _ := s.Registry().Handle("crate")
			Eventually(h.Position).Should(Equal(pos))
			Expect(s.Stats().Dropped).To(BeZero())
		})

		It("registers ellipsoids built by the simulation side", func() {
			handshake()
			spawner.emit(protocol.EllipsoidRequest{Name: "blob", Radius: mgl64.Vec3{1, 2, 1}, Points: 3, Mass: 1})
			Eventually(func() bool {
				_, ok := s.Registry().Lookup("blob")
				return ok
			}).Should(BeTrue())
			spawner.quiet()
		})

		It("delivers ray results to the caller", func() {
			handshake()
			hits := make(chan []protocol.Hit, 1)
			id, err := s.RayCast(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, nil, func(h []protocol.Hit) { hits <- h })
			Expect(err).NotTo(HaveOccurred())
			Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.RayCast{}))

			spawner.emit(protocol.RayCastResult{ID: id, Hits: []protocol.Hit{{Name: "wall", Distance: 3}}})
			Eventually(hits).Should(Receive(HaveLen(1)))
		})

		It("forwards option patches and retimes on the next start", func() {
			handshake()
			fps := 30
			Expect(s.SetOption(protocol.OptionPatch{FPS: &fps})).To(Succeed())
			Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.SetOption{}))
			Expect(s.Options().FPS).To(Equal(30))
			Expect(s.scheduler.Interval()).To(Equal(time.Second / 30))
		})

		It("sends passthrough commands", func() {
			handshake()
			Expect(s.Command(protocol.CmdDrive, map[string]float64{"throttle": 1})).To(Succeed())
			cmd := spawner.next().(protocol.Command)
			Expect(cmd.Kind).To(Equal(protocol.CmdDrive))
		})
	})

	Describe("breaking", func() {
		BeforeEach(func() { spawner.transfer = false })

		It("replaces the target with non-breakable debris", func() {
			handshake()
			opts := body.BreakOptions{MaxImpulse: 1, MaxRadial: 1, MaxRandom: 1, SubdivisionLevel: 1}
			Expect(s.Add(body.Descriptor{
				Name: "vase", Type: "box", Mass: 2, Material: "glass",
				Shape:     body.Shape{Size: mgl64.Vec3{1, 1, 1}},
				Breakable: true, Break: &opts,
			})).To(Succeed())
			spawner.next()

			spawner.emit(protocol.BreakRequest{Name: "vase", Point: mgl64.Vec3{0, -0.5, 0}, Normal: mgl64.Vec3{0, 1, 0}, Options: opts})
			Expect(spawner.next()).To(Equal(protocol.RemoveObject{Name: "vase"}))
			add := spawner.next().(protocol.AddObject)
			Expect(add.Descriptor.Name).To(HavePrefix("vase_debris"))

			Eventually(func() bool {
				_, ok := s.Registry().Lookup("vase")
				return ok
			}).Should(BeFalse())
			Eventually(func() int { return s.Registry().Len() }).Should(BeNumerically(">=", 2))
			for _, name := range s.Registry().Names() {
				Expect(strings.HasPrefix(name, "vase_debris")).To(BeTrue())
				e, _ := s.Registry().Lookup(name)
				Expect(e.Descriptor.Breakable).To(BeFalse())
				Expect(e.Descriptor.Material).To(Equal("glass"))
			}
		})

		It("breaks an object only once it is marked breakable", func() {
			handshake()
			opts := body.BreakOptions{MaxImpulse: 1, MaxRadial: 1, MaxRandom: 0, SubdivisionLevel: 1}
			Expect(s.Add(body.Descriptor{Name: "jar", Type: "box", Mass: 1, Shape: body.Shape{Size: mgl64.Vec3{1, 1, 1}}})).To(Succeed())
			spawner.next()

			req := protocol.BreakRequest{Name: "jar", Point: mgl64.Vec3{0, -0.5, 0}, Normal: mgl64.Vec3{0, 1, 0}, Options: opts}
			spawner.emit(req)
			spawner.quiet()
			Expect(s.Has("jar")).To(BeTrue())

			Expect(s.Command(protocol.CmdBreakable, protocol.Breakable{Name: "jar", Options: opts})).To(Succeed())
			Expect(spawner.next()).To(BeAssignableToTypeOf(protocol.Command{}))
			e, _ := s.Registry().Lookup("jar")
			Expect(e.Descriptor.Breakable).To(BeTrue())

			spawner.emit(req)
			Expect(spawner.next()).To(Equal(protocol.RemoveObject{Name: "jar"}))
		})

		It("ignores requests whose subdivision budget is spent", func() {
			handshake()
			opts := body.BreakOptions{MaxImpulse: 1, MaxRadial: 1, MaxRandom: 1, SubdivisionLevel: 1}
			Expect(s.Add(body.Descriptor{
				Name: "vase", Type: "box", Mass: 1, Shape: body.Shape{Size: mgl64.Vec3{1, 1, 1}},
				Breakable: true, Break: &opts,
			})).To(Succeed())
			spawner.next()

			spent := opts
			spent.SubdivisionLevel = 0
			spawner.emit(protocol.BreakRequest{Name: "vase", Normal: mgl64.Vec3{0, 1, 0}, Options: spent})
			spawner.quiet()
			Expect(s.Has("vase")).To(BeTrue())
		})

		It("skips a target that is already gone", func() {
			handshake()
			spawner.emit(protocol.BreakRequest{Name: "ghost", Options: body.DefaultBreakOptions()})
			spawner.quiet()
		})
	})

	Describe("Destroy", func() {
		It("terminates and refuses further messages", func() {
			running()
			clock.Fire()
			spawner.next()

			s.Destroy()
			s.Destroy()
			Expect(s.State()).To(Equal(Terminated))
			Expect(s.Stats().InFlight).To(BeFalse())
			Eventually(spawner.ep.Done()).Should(BeClosed())
			Expect(errors.Is(s.Add(body.Descriptor{Name: "x", Type: "box"}), bridge.ErrTerminated)).To(BeTrue())
			Expect(errors.Is(s.Start(), bridge.ErrTerminated)).To(BeTrue())
		})
	})
})
