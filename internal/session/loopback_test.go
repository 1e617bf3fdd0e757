package session

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/loopback"
	"github.com/san-kum/simbridge/internal/protocol"
)

var _ = DescribeTable("against the loopback peer",
	func(transfer bool, mode TransferMode) {
		opts := protocol.DefaultOptions()
		opts.FPS = 120
		s := New(Config{
			Options:  opts,
			Capacity: layout.DefaultCapacity(),
			Loader:   testImage,
			Spawner:  loopback.Spawner{Transfer: transfer},
		})
		DeferCleanup(s.Destroy)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		Expect(s.Init(ctx)).To(Succeed())
		Expect(s.WaitReady(ctx)).To(Succeed())
		Expect(s.Mode()).To(Equal(mode))

		Expect(s.Add(body.Descriptor{
			Name:  "ball",
			Type:  "sphere",
			Mass:  1,
			Shape: body.Shape{Size: mgl64.Vec3{0.5, 0, 0}},
			Pose:  body.Pose{Position: mgl64.Vec3{0, 10, 0}},
		})).To(Succeed())
		Expect(s.Start()).To(Succeed())

		ball, ok := s.Registry().Handle("ball")
		Expect(ok).To(BeTrue())
		Eventually(func() float64 { return ball.Position().Y() }, "2s").Should(BeNumerically("<", 9.9))
		Expect(s.Stats().Sent).To(BeNumerically(">", 0))
	},
	Entry("zero-copy pipe", true, ZeroCopy),
	Entry("deep-copy pipe", false, DeepCopy),
)
