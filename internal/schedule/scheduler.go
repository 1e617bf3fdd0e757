package schedule

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// StepFunc sends one step request carrying the elapsed time in seconds.
type StepFunc func(delta float64) error

// Scheduler paces step requests with at most one outstanding at a time. A
// timer fire that finds a request in flight is dropped, not queued, so the
// cadence self-throttles to the simulation's throughput.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	step     StepFunc
	logger   *log.Logger
	interval time.Duration

	ticker Ticker
	quit   chan struct{}

	then     time.Time
	delta    float64
	inFlight bool

	fpsWindowStart time.Time
	fpsCount       int
	fps            int

	sent    uint64
	skipped uint64
}

// IntervalFor converts a target rate into a tick interval.
func IntervalFor(fps int) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}

func New(fps int, step StepFunc, clock Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		clock:    clock,
		step:     step,
		logger:   logger.WithPrefix("scheduler"),
		interval: IntervalFor(fps),
	}
}

// Start arms the periodic timer, replacing any timer already armed, and
// restarts delta timing from now.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarm()
	now := s.clock.Now()
	s.then = now
	s.fpsWindowStart = now
	s.fpsCount = 0
	s.ticker = s.clock.NewTicker(s.interval)
	s.quit = make(chan struct{})
	go s.loop(s.ticker, s.quit)

	s.logger.Debug("armed", "interval", s.interval)
}

// Stop cancels future ticks. A request already in flight stays in flight.
// Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm()
}

func (s *Scheduler) disarm() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.quit)
	s.ticker = nil
	s.quit = nil
}

func (s *Scheduler) loop(t Ticker, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-t.C():
			select {
			case <-quit:
				return
			default:
			}
			s.tick(quit)
		}
	}
}

// tick handles one timer fire and reports whether a step was sent. A nil
// quit skips the check for fires from a disarmed or replaced timer.
func (s *Scheduler) tick(quit chan struct{}) bool {
	s.mu.Lock()
	if quit != nil && quit != s.quit {
		s.mu.Unlock()
		return false
	}
	if s.inFlight {
		s.skipped++
		s.mu.Unlock()
		return false
	}
	now := s.clock.Now()
	s.delta = now.Sub(s.then).Seconds()
	s.then = now
	s.inFlight = true
	s.sent++
	delta := s.delta
	s.mu.Unlock()

	if err := s.step(delta); err != nil {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
		s.logger.Warn("step not sent", "err", err)
		return false
	}
	return true
}

// StepDone clears the in-flight flag and advances the fps window.
func (s *Scheduler) StepDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	now := s.clock.Now()
	if now.Sub(s.fpsWindowStart) > time.Second {
		s.fps = s.fpsCount
		s.fpsCount = 0
		s.fpsWindowStart = now
	}
	s.fpsCount++
}

// Abandon forgets an outstanding request whose reply will never arrive.
func (s *Scheduler) Abandon() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// SetFPS changes the tick rate. It takes effect on the next Start.
func (s *Scheduler) SetFPS(fps int) {
	s.mu.Lock()
	s.interval = IntervalFor(fps)
	s.mu.Unlock()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// FPS is the number of completed steps in the last closed one-second window.
func (s *Scheduler) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// Delta is the elapsed time in seconds carried by the latest step.
func (s *Scheduler) Delta() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delta
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Sent counts step requests issued.
func (s *Scheduler) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Skipped counts timer fires dropped because a step was in flight.
func (s *Scheduler) Skipped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}
