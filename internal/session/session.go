package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/fracture"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/registry"
	"github.com/san-kum/simbridge/internal/schedule"
	"github.com/san-kum/simbridge/internal/transport"
)

// Config holds the collaborators and callbacks of a session. Loader and
// Spawner are required.
type Config struct {
	Options  protocol.Options
	Capacity layout.Capacity
	Loader   Loader
	Spawner  Spawner
	Clock    schedule.Clock
	Logger   *log.Logger
	Input    InputSource
	// Seed drives fragmentation jitter.
	Seed uint64

	// NewHandle builds the consumer-side handle for an added object. Nil
	// uses a registry.Node.
	NewHandle func(d body.Descriptor) registry.Handle
	OnReady   func()
	OnContact func(name string, touching bool)
}

// tracked is one object writing records into a slot, in add order.
type tracked struct {
	name  string
	count int
}

// Session drives one simulation peer. All mutable bridge state lives here;
// sessions are independent of each other.
type Session struct {
	cfg    Config
	logger *log.Logger

	layout    layout.Layout
	scheduler *schedule.Scheduler
	registry  *registry.Registry
	fracture  *fracture.Engine
	router    *protocol.Router
	pool      *layout.Pool

	mu         sync.Mutex
	state      State
	mode       TransferMode
	image      *RuntimeImage
	transport  transport.Transport
	buffer     *layout.Buffer
	tracks     [layout.NumCategories][]tracked
	rays       map[int]func([]protocol.Hit)
	nextRay    int
	nextName   int
	postUpdate func(delta float64)
	// linkFaults keeps the frame faults of links already closed.
	linkFaults uint64

	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.SystemClock()
	}
	cfg.Options = cfg.Options.WithDefaults()
	if cfg.NewHandle == nil {
		cfg.NewHandle = func(d body.Descriptor) registry.Handle {
			return registry.NewNode(d.Name, d.Pose)
		}
	}

	s := &Session{
		cfg:      cfg,
		logger:   cfg.Logger.WithPrefix("session"),
		registry: registry.New(cfg.Logger),
		rays:     make(map[int]func([]protocol.Hit)),
		ready:    make(chan struct{}),
	}
	s.scheduler = schedule.New(cfg.Options.FPS, s.sendStep, cfg.Clock, cfg.Logger)
	s.fracture = fracture.NewEngine(s.registry, s, cfg.Seed, cfg.Logger)
	s.router = protocol.NewRouter(protocol.Handlers{
		Ready:         s.onReady,
		Reclaim:       s.onReclaim,
		StepDone:      s.onStepDone,
		PoseUpdate:    s.onPose,
		Ellipsoid:     s.onEllipsoid,
		Break:         s.onBreak,
		RayCastResult: s.onRayResult,
	}, cfg.Logger)
	return s
}

// Init plans the buffer layout, stages the runtime image, spawns the
// simulation side and sends Init. A setup fault leaves the session
// Uninitialized.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		return fmt.Errorf("%w: init from %s", bridge.ErrInvalidState, s.state)
	}
	if s.cfg.Loader == nil || s.cfg.Spawner == nil {
		return fmt.Errorf("%w: no loader or spawner configured", bridge.ErrRuntimeUnavailable)
	}

	s.layout = layout.Plan(s.cfg.Capacity)
	if err := s.layout.Validate(); err != nil {
		return err
	}
	s.state = Loading
	s.logger.Info("loading runtime", "buffer", s.layout.Total)

	img, err := s.cfg.Loader.Load(ctx)
	if err != nil {
		s.state = Uninitialized
		s.logger.Error("runtime unavailable", "err", err)
		return setupFault(err)
	}
	s.image = &img

	tr, err := s.cfg.Spawner.Spawn(ctx)
	if err != nil {
		s.state = Uninitialized
		s.image = nil
		s.logger.Error("spawn failed", "err", err)
		return setupFault(err)
	}
	s.transport = tr
	s.state = HandshakePending

	s.mode = probe(tr)
	s.pool = layout.NewPool(s.layout.Total)
	if s.mode == DeepCopy {
		s.buffer = layout.NewBuffer(s.layout.Total)
	}

	err = tr.Post(protocol.Init{
		Layout:   s.layout,
		Runtime:  img.Data,
		Transfer: s.mode == ZeroCopy,
		Options:  s.cfg.Options,
	})
	if err != nil {
		s.state = Uninitialized
		s.transport = nil
		s.image = nil
		s.buffer = nil
		s.pool = nil
		if cerr := tr.Close(); cerr != nil {
			s.logger.Warn("close failed", "err", cerr)
		}
		s.logger.Error("send init failed", "err", err)
		return setupFault(fmt.Errorf("send init: %w", err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.router.Run(runCtx, tr.Events())
	}()
	go func() {
		defer s.wg.Done()
		s.watch(runCtx, tr)
	}()
	s.logger.Info("handshake sent", "mode", s.mode)
	return nil
}

func setupFault(err error) error {
	if errors.Is(err, bridge.ErrRuntimeUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", bridge.ErrRuntimeUnavailable, err)
}

// probe posts a one-scalar buffer with ownership transfer. If the send left
// it detached, the link moves buffers without copying.
func probe(tr transport.Transport) TransferMode {
	buf := layout.NewBuffer(1)
	if err := tr.Post(protocol.Probe{Buffer: buf}); err != nil {
		return DeepCopy
	}
	if buf.Detached() {
		return ZeroCopy
	}
	return DeepCopy
}

// watch terminates the session when the simulation side goes away.
func (s *Session) watch(ctx context.Context, tr transport.Transport) {
	select {
	case <-ctx.Done():
	case <-tr.Done():
		s.mu.Lock()
		live := s.state != Terminated && s.transport == tr
		s.mu.Unlock()
		if live {
			s.logger.Warn("simulation side closed")
			s.terminate()
		}
	}
}

// WaitReady blocks until the simulation side reports Ready.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr == nil {
		return bridge.ErrNotReady
	}
	select {
	case <-s.ready:
		return nil
	case <-tr.Done():
		return bridge.ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins ticking. Calling it while running re-arms the timer.
func (s *Session) Start() error {
	s.mu.Lock()
	switch s.state {
	case Ready, Running, Paused, Resetting:
	case Terminated:
		s.mu.Unlock()
		return bridge.ErrTerminated
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", bridge.ErrNotReady, s.state)
	}
	if s.buffer == nil {
		s.buffer = layout.NewBuffer(s.layout.Total)
	}
	if err := s.transport.Post(protocol.Start{}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("send start: %w", err)
	}
	s.state = Running
	s.mu.Unlock()

	s.scheduler.Start()
	s.logger.Info("running", "interval", s.scheduler.Interval())
	return nil
}

// Pause stops the timer. An outstanding step still completes.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state == Running {
		s.state = Paused
	}
	s.mu.Unlock()
	s.scheduler.Stop()
}

// Stop is Pause.
func (s *Session) Stop() { s.Pause() }

func (s *Session) Resume() error {
	s.mu.Lock()
	paused := s.state == Paused
	s.mu.Unlock()
	if !paused {
		return fmt.Errorf("%w: resume while not paused", bridge.ErrInvalidState)
	}
	return s.Start()
}

// Reset stops ticking, forgets every consumer-side object and tells the
// simulation side to clear its world. A full reset also discards the shared
// buffer contents. Start resumes ticking; no acknowledgment is awaited.
func (s *Session) Reset(full bool) error {
	s.mu.Lock()
	switch s.state {
	case Ready, Running, Paused, Resetting:
	case Terminated:
		s.mu.Unlock()
		return bridge.ErrTerminated
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: reset from %s", bridge.ErrNotReady, s.state)
	}
	s.state = Resetting
	s.mu.Unlock()

	s.scheduler.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Clear()
	s.tracks = [layout.NumCategories][]tracked{}
	s.rays = make(map[int]func([]protocol.Hit))
	s.postUpdate = nil
	if full {
		s.buffer = layout.NewBuffer(s.layout.Total)
	}
	if err := s.transport.Post(protocol.Reset{Full: full}); err != nil {
		return fmt.Errorf("send reset: %w", err)
	}
	s.logger.Info("reset", "full", full)
	return nil
}

// Destroy terminates the simulation side. Any outstanding step is abandoned
// silently. Destroying twice is a no-op.
func (s *Session) Destroy() {
	s.terminate()
	s.wg.Wait()
}

func (s *Session) terminate() {
	s.mu.Lock()
	if s.state == Terminated {
		s.mu.Unlock()
		return
	}
	s.state = Terminated
	tr, cancel := s.transport, s.cancel
	s.linkFaults += frameFaults(tr)
	s.transport = nil
	s.image = nil
	s.registry.Clear()
	s.tracks = [layout.NumCategories][]tracked{}
	s.mu.Unlock()

	s.scheduler.Stop()
	s.scheduler.Abandon()
	if cancel != nil {
		cancel()
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			s.logger.Warn("close failed", "err", err)
		}
	}
	s.logger.Info("terminated")
}

// sendStep is the scheduler's step function.
func (s *Session) sendStep(delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Terminated || s.transport == nil {
		return bridge.ErrTerminated
	}
	msg := protocol.Step{Delta: delta, Input: inputVector(s.cfg.Input)}
	if s.mode == ZeroCopy {
		if s.buffer == nil || s.buffer.Detached() {
			return fmt.Errorf("%w: shared buffer not held", bridge.ErrInvalidState)
		}
		msg.Buffer = s.buffer
	}
	return s.transport.Post(msg)
}

// OnPostUpdate sets a hook run after each step's slot consumers. Reset
// clears it.
func (s *Session) OnPostUpdate(fn func(delta float64)) {
	s.mu.Lock()
	s.postUpdate = fn
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() TransferMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Layout() layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

func (s *Session) Registry() *registry.Registry { return s.registry }

// Has reports whether an object is registered under name.
func (s *Session) Has(name string) bool {
	_, ok := s.registry.Lookup(name)
	return ok
}

// Motion reads each slot-tracked rigid body and character's speed from the
// last completed step. Sleeping bodies report a negative speed. It returns
// nil while the shared buffer is with the simulation side.
func (s *Session) Motion() map[string]float64 {
	s.mu.Lock()
	if s.buffer == nil || s.buffer.Detached() || s.pool == nil {
		s.mu.Unlock()
		return nil
	}
	pool, l := s.pool, s.layout
	snap := pool.GetAndCopy(s.buffer.Data())
	rigid := append([]tracked(nil), s.tracks[layout.RigidBody]...)
	chars := append([]tracked(nil), s.tracks[layout.Character]...)
	s.mu.Unlock()
	defer pool.Put(snap)

	out := make(map[string]float64, len(rigid)+len(chars))
	read := func(slot layout.Slot, tracks []tracked) {
		for i, t := range tracks {
			off := slot.Offset + i*poseRecord
			if off+poseRecord > slot.End() || off+poseRecord > len(snap) {
				return
			}
			out[t.name] = float64(snap[off])
		}
	}
	read(l.Slot(layout.RigidBody), rigid)
	read(l.Slot(layout.Character), chars)
	return out
}
