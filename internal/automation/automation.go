package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/session"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of operations against a running session.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step holds exactly one action. Objects and payloads use the same keys as
// the wire format.
type Step struct {
	Add     []map[string]any `yaml:"add"`
	Wait    float64          `yaml:"wait"`
	Option  map[string]any   `yaml:"option"`
	Command *CommandStep     `yaml:"command"`
	Remove  []string         `yaml:"remove"`
	Pause   bool             `yaml:"pause"`
	Resume  bool             `yaml:"resume"`
	Reset   string           `yaml:"reset"`
	RayCast *RayStep         `yaml:"raycast"`
	Expect  *Check           `yaml:"expect"`
}

type CommandStep struct {
	Kind    string         `yaml:"kind"`
	Payload map[string]any `yaml:"payload"`
}

type RayStep struct {
	Origin    [3]float64 `yaml:"origin"`
	Direction [3]float64 `yaml:"direction"`
	Filters   []string   `yaml:"filters"`
}

// Check is an expect step: assertions on the session between actions. Zero
// fields are not checked.
type Check struct {
	State      string   `yaml:"state"`
	Objects    *int     `yaml:"objects"`
	MinObjects int      `yaml:"minObjects"`
	Present    []string `yaml:"present"`
	Absent     []string `yaml:"absent"`
}

// Target is the session surface a scenario drives.
type Target interface {
	AddGroup(ds []body.Descriptor) error
	Remove(name string) error
	SetOption(p protocol.OptionPatch) error
	Command(kind protocol.CommandKind, payload any) error
	RayCast(origin, direction mgl64.Vec3, filters []string, done func([]protocol.Hit)) (int, error)
	Pause()
	Resume() error
	Reset(full bool) error
	Start() error
	Stats() session.Stats
	Has(name string) bool
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		if n := step.actions(); n != 1 {
			return nil, fmt.Errorf("step %d: expected one action, got %d", i+1, n)
		}
	}
	return &scenario, nil
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Add != nil, s.Wait > 0, s.Option != nil, s.Command != nil, s.Remove != nil,
		s.Pause, s.Resume, s.Reset != "", s.RayCast != nil, s.Expect != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Report collects what a scenario observed.
type Report struct {
	Steps int
	Rays  map[int][]protocol.Hit
}

type Runner struct {
	target Target
	logger *log.Logger
	// Sleep waits out a wait step.
	Sleep func(ctx context.Context, d time.Duration) error
	// RayTimeout bounds how long a raycast step waits for its result.
	RayTimeout time.Duration
}

func NewRunner(target Target, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		target:     target,
		logger:     logger.WithPrefix("scenario"),
		Sleep:      sleep,
		RayTimeout: 5 * time.Second,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes every step in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, scenario *Scenario) (*Report, error) {
	report := &Report{Rays: make(map[int][]protocol.Hit)}
	r.logger.Info("scenario", "name", scenario.Name, "steps", len(scenario.Steps))

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.run(ctx, step, report); err != nil {
			return report, fmt.Errorf("step %d: %w", i+1, err)
		}
		report.Steps++
	}
	return report, nil
}

func (r *Runner) run(ctx context.Context, step Step, report *Report) error {
	switch {
	case step.Add != nil:
		ds, err := descriptors(step.Add)
		if err != nil {
			return err
		}
		r.logger.Debug("add", "objects", len(ds))
		return r.target.AddGroup(ds)

	case step.Wait > 0:
		return r.Sleep(ctx, time.Duration(step.Wait*float64(time.Second)))

	case step.Option != nil:
		var patch protocol.OptionPatch
		if err := rewire(step.Option, &patch); err != nil {
			return fmt.Errorf("option: %w", err)
		}
		return r.target.SetOption(patch)

	case step.Command != nil:
		payload, err := json.Marshal(step.Command.Payload)
		if err != nil {
			return fmt.Errorf("command: %w", err)
		}
		return r.target.Command(protocol.CommandKind(step.Command.Kind), json.RawMessage(payload))

	case step.Remove != nil:
		for _, name := range step.Remove {
			if err := r.target.Remove(name); err != nil {
				return err
			}
		}
		return nil

	case step.Pause:
		r.target.Pause()
		return nil

	case step.Resume:
		return r.target.Resume()

	case step.Reset != "":
		switch step.Reset {
		case "full", "soft":
		default:
			return fmt.Errorf("reset: expected full or soft, got %q", step.Reset)
		}
		if err := r.target.Reset(step.Reset == "full"); err != nil {
			return err
		}
		return r.target.Start()

	case step.RayCast != nil:
		return r.rayCast(ctx, step.RayCast, report)

	case step.Expect != nil:
		return r.expect(step.Expect)
	}
	return nil
}

func (r *Runner) rayCast(ctx context.Context, rs *RayStep, report *Report) error {
	var once sync.Once
	got := make(chan []protocol.Hit, 1)
	id, err := r.target.RayCast(mgl64.Vec3(rs.Origin), mgl64.Vec3(rs.Direction), rs.Filters, func(hits []protocol.Hit) {
		once.Do(func() { got <- hits })
	})
	if err != nil {
		return err
	}

	wait, cancel := context.WithTimeout(ctx, r.RayTimeout)
	defer cancel()
	select {
	case hits := <-got:
		report.Rays[id] = hits
		r.logger.Debug("raycast", "id", id, "hits", len(hits))
		return nil
	case <-wait.Done():
		return fmt.Errorf("raycast %d: %w", id, wait.Err())
	}
}

func (r *Runner) expect(e *Check) error {
	st := r.target.Stats()
	if e.State != "" && st.State.String() != e.State {
		return fmt.Errorf("expected state %s, got %s", e.State, st.State)
	}
	if e.Objects != nil && st.Objects != *e.Objects {
		return fmt.Errorf("expected %d objects, got %d", *e.Objects, st.Objects)
	}
	if st.Objects < e.MinObjects {
		return fmt.Errorf("expected at least %d objects, got %d", e.MinObjects, st.Objects)
	}
	for _, name := range e.Present {
		if !r.target.Has(name) {
			return fmt.Errorf("expected %s to be present", name)
		}
	}
	for _, name := range e.Absent {
		if r.target.Has(name) {
			return fmt.Errorf("expected %s to be absent", name)
		}
	}
	return nil
}

func descriptors(objects []map[string]any) ([]body.Descriptor, error) {
	ds := make([]body.Descriptor, len(objects))
	for i, o := range objects {
		if err := rewire(o, &ds[i]); err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
	}
	return ds, nil
}

// rewire decodes a YAML mapping through its JSON form so wire tags apply.
func rewire(in map[string]any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
