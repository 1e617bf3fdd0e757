package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/registry"
	"github.com/san-kum/simbridge/internal/session"
)

type fakeController struct {
	stats   session.Stats
	reg     *registry.Registry
	paused  int
	resumed int
}

func (f *fakeController) Stats() session.Stats         { return f.stats }
func (f *fakeController) Pause()                       { f.paused++ }
func (f *fakeController) Resume() error                { f.resumed++; return nil }
func (f *fakeController) Registry() *registry.Registry { return f.reg }

func newFake() *fakeController {
	reg := registry.New(nil)
	d := body.Descriptor{Name: "crate0", Type: "box", Mass: 1}
	reg.Register(d.Name, registry.NewNode(d.Name, body.Pose{Position: mgl64.Vec3{1, 2, 3}}), d)
	return &fakeController{
		stats: session.Stats{State: session.Running, FPS: 60, Delta: 1.0 / 60, Sent: 10, Objects: 1},
		reg:   reg,
	}
}

func TestTickPollsStats(t *testing.T) {
	ctl := newFake()
	var m tea.Model = NewModel(ctl, "drop", 60, nil)

	for i := 0; i < 3; i++ {
		m, _ = m.Update(TickMsg(time.Now()))
	}

	model := m.(Model)
	if len(model.history) != 3 {
		t.Fatalf("expected 3 history points, got %d", len(model.history))
	}
	view := model.View()
	for _, want := range []string{"DROP", "RUNNING", "crate0", "fps"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestHistoryIsBounded(t *testing.T) {
	ctl := newFake()
	var m tea.Model = NewModel(ctl, "drop", 60, nil)
	for i := 0; i < historyCapacity+10; i++ {
		m, _ = m.Update(TickMsg(time.Now()))
	}
	if n := len(m.(Model).history); n != historyCapacity {
		t.Errorf("expected %d history points, got %d", historyCapacity, n)
	}
}

func TestSpaceTogglesPause(t *testing.T) {
	ctl := newFake()
	var m tea.Model = NewModel(ctl, "drop", 60, nil)
	m, _ = m.Update(TickMsg(time.Now()))

	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	m, _ = m.Update(space)
	if ctl.paused != 1 {
		t.Fatalf("expected pause, got %d calls", ctl.paused)
	}

	ctl.stats.State = session.Paused
	m, _ = m.Update(TickMsg(time.Now()))
	m.Update(space)
	if ctl.resumed != 1 {
		t.Errorf("expected resume, got %d calls", ctl.resumed)
	}
}

func TestResetKeyShowsError(t *testing.T) {
	ctl := newFake()
	var m tea.Model = NewModel(ctl, "drop", 60, func() error { return errors.New("reset refused") })
	m, _ = m.Update(TickMsg(time.Now()))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})

	model := m.(Model)
	if len(model.history) != 0 {
		t.Errorf("expected history cleared, got %d points", len(model.history))
	}
	if !strings.Contains(model.View(), "reset refused") {
		t.Error("expected reset error in view")
	}
}

func TestQuit(t *testing.T) {
	m := NewModel(newFake(), "drop", 60, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
