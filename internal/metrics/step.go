package metrics

import (
	"math"
	"time"

	"github.com/san-kum/simbridge/internal/schedule"
)

// Rate is the mean reported fps over samples with a closed window.
type Rate struct {
	name    string
	sum     float64
	samples int
}

func NewRate() *Rate {
	return &Rate{name: "fps"}
}

func (r *Rate) Name() string { return r.name }

func (r *Rate) Observe(s Sample) {
	if s.FPS <= 0 {
		return
	}
	r.sum += float64(s.FPS)
	r.samples++
}

func (r *Rate) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return r.sum / float64(r.samples)
}

func (r *Rate) Reset() {
	r.sum = 0
	r.samples = 0
}

// SkipRatio is the share of timer fires dropped for backpressure since the
// first sample.
type SkipRatio struct {
	name        string
	first, last Sample
	seen        bool
}

func NewSkipRatio() *SkipRatio {
	return &SkipRatio{name: "skip_ratio"}
}

func (s *SkipRatio) Name() string { return s.name }

func (s *SkipRatio) Observe(sample Sample) {
	if !s.seen {
		s.first = sample
		s.seen = true
	}
	s.last = sample
}

func (s *SkipRatio) Value() float64 {
	sent := s.last.Sent - s.first.Sent
	skipped := s.last.Skipped - s.first.Skipped
	if sent+skipped == 0 {
		return 0
	}
	return float64(skipped) / float64(sent+skipped)
}

func (s *SkipRatio) Reset() {
	s.first, s.last = Sample{}, Sample{}
	s.seen = false
}

// Latency is the mean step delta in milliseconds.
type Latency struct {
	name    string
	sum     float64
	samples int
}

func NewLatency() *Latency {
	return &Latency{name: "step_ms"}
}

func (l *Latency) Name() string { return l.name }

func (l *Latency) Observe(s Sample) {
	if s.Delta <= 0 {
		return
	}
	l.sum += s.Delta * 1000
	l.samples++
}

func (l *Latency) Value() float64 {
	if l.samples == 0 {
		return 0
	}
	return l.sum / float64(l.samples)
}

func (l *Latency) Reset() {
	l.sum = 0
	l.samples = 0
}

// Jitter is the largest deviation, in milliseconds, of a step delta from the
// target tick interval.
type Jitter struct {
	name   string
	target float64
	max    float64
}

func NewJitter(fps int) *Jitter {
	return &Jitter{
		name:   "jitter_ms",
		target: float64(schedule.IntervalFor(fps)) / float64(time.Millisecond),
	}
}

func (j *Jitter) Name() string { return j.name }

func (j *Jitter) Observe(s Sample) {
	if s.Delta <= 0 {
		return
	}
	j.max = math.Max(j.max, math.Abs(s.Delta*1000-j.target))
}

func (j *Jitter) Value() float64 { return j.max }

func (j *Jitter) Reset() { j.max = 0 }
