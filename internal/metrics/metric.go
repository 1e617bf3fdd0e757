package metrics

import (
	"sort"

	"github.com/san-kum/simbridge/internal/session"
)

// Sample is one observation of a running session.
type Sample struct {
	FPS     int
	Delta   float64
	Sent    uint64
	Skipped uint64
	Objects int
}

func SampleOf(st session.Stats) Sample {
	return Sample{
		FPS:     st.FPS,
		Delta:   st.Delta,
		Sent:    st.Sent,
		Skipped: st.Skipped,
		Objects: st.Objects,
	}
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Set observes every metric it holds.
type Set []Metric

func Standard(fps int) Set {
	return Set{NewRate(), NewSkipRatio(), NewLatency(), NewJitter(fps)}
}

func (s Set) Observe(sample Sample) {
	for _, m := range s {
		m.Observe(sample)
	}
}

func (s Set) Reset() {
	for _, m := range s {
		m.Reset()
	}
}

// Report returns each metric's value keyed by name.
func (s Set) Report() map[string]float64 {
	out := make(map[string]float64, len(s))
	for _, m := range s {
		out[m.Name()] = m.Value()
	}
	return out
}

// Names returns metric names in sorted order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, m := range s {
		names[i] = m.Name()
	}
	sort.Strings(names)
	return names
}
