// Package monitor is a terminal dashboard for a running session: step rate,
// backpressure and the poses of tracked objects.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/simbridge/internal/metrics"
	"github.com/san-kum/simbridge/internal/registry"
	"github.com/san-kum/simbridge/internal/session"
)

const (
	historyCapacity = 120
	maxRows         = 8
	refresh         = time.Second / 10
)

// Controller is the part of a session the dashboard drives.
type Controller interface {
	Stats() session.Stats
	Pause()
	Resume() error
	Registry() *registry.Registry
}

type TickMsg time.Time

type Model struct {
	ctl     Controller
	reset   func() error
	metrics metrics.Set
	history []float64
	stats   session.Stats
	err     error
	title   string
}

// NewModel builds a dashboard. reset, when set, is bound to the r key and
// should reset the session and repopulate its scene.
func NewModel(ctl Controller, title string, fps int, reset func() error) Model {
	return Model{
		ctl:     ctl,
		reset:   reset,
		metrics: metrics.Standard(fps),
		history: make([]float64, 0, historyCapacity),
		title:   title,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.err = nil
			if m.stats.State == session.Paused {
				m.err = m.ctl.Resume()
			} else {
				m.ctl.Pause()
			}
		case "r":
			if m.reset != nil {
				m.err = m.reset()
				m.metrics.Reset()
				m.history = m.history[:0]
			}
		}
	case TickMsg:
		m.observe()
		return m, tick()
	}
	return m, nil
}

func (m *Model) observe() {
	m.stats = m.ctl.Stats()
	m.metrics.Observe(metrics.SampleOf(m.stats))
	if len(m.history) == historyCapacity {
		copy(m.history, m.history[1:])
		m.history = m.history[:historyCapacity-1]
	}
	m.history = append(m.history, float64(m.stats.FPS))
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(statusStyle(m.stats.State).Render(strings.ToUpper(m.stats.State.String())))
	s.WriteString("  " + labelStyle.Render(m.stats.Mode.String()) + "\n")

	if len(m.history) > 1 {
		chart := asciigraph.Plot(m.history, asciigraph.Height(5), asciigraph.Width(40), asciigraph.Caption("steps/s"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("FPS", fmt.Sprintf("%d", m.stats.FPS))
	row("Delta", fmt.Sprintf("%.1fms", m.stats.Delta*1000))
	row("Sent", fmt.Sprintf("%d", m.stats.Sent))
	skip := m.metrics.Report()["skip_ratio"]
	row("Skipped", fmt.Sprintf("%d %s", m.stats.Skipped, bar(skip, 10)))
	row("Dropped", fmt.Sprintf("%d", m.stats.Dropped))
	row("Objects", fmt.Sprintf("%d", m.stats.Objects))

	report := m.metrics.Report()
	s.WriteString("\nMETRICS\n")
	for _, name := range m.metrics.Names() {
		row(name, fmt.Sprintf("%.3f", report[name]))
	}

	s.WriteString("\nOBJECTS\n")
	s.WriteString(m.objects())

	if m.err != nil {
		s.WriteString("\n" + faultStyle.Render(m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("SP:Pause R:Reset Q:Quit"))
	return lipgloss.JoinVertical(lipgloss.Left, panelStyle.Render(s.String()))
}

func (m Model) objects() string {
	reg := m.ctl.Registry()
	names := reg.Names()
	if len(names) == 0 {
		return labelStyle.Render("  (none)") + "\n"
	}
	var s strings.Builder
	for i, name := range names {
		if i == maxRows {
			fmt.Fprintf(&s, "  ... %d more\n", len(names)-maxRows)
			break
		}
		h, ok := reg.Handle(name)
		if !ok {
			continue
		}
		p := h.Position()
		fmt.Fprintf(&s, "  %-14s %7.2f %7.2f %7.2f\n", name, p[0], p[1], p[2])
	}
	return s.String()
}
