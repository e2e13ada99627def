package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// recentEvents is how many audit rows the monitor retains.
const recentEvents = 12

// refreshInterval paces stats refresh.
const refreshInterval = 500 * time.Millisecond

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// EventTap collects recent events from a runtime sink for display. Register
// its Func with the runtime before starting the monitor.
type EventTap struct {
	mu     sync.Mutex
	recent []types.Event
}

// NewEventTap creates an empty tap.
func NewEventTap() *EventTap { return &EventTap{} }

// Func adapts the tap to the runtime sink signature.
func (t *EventTap) Func() rt.SinkFunc {
	return func(batch []types.Event) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.recent = append(t.recent, batch...)
		if excess := len(t.recent) - recentEvents; excess > 0 {
			t.recent = t.recent[excess:]
		}
	}
}

// Snapshot copies the retained events, newest last.
func (t *EventTap) Snapshot() []types.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Event, len(t.recent))
	copy(out, t.recent)
	return out
}

type tickMsg time.Time

// MonitorModel is the Bubble Tea model for the live monitor.
type MonitorModel struct {
	runtime *rt.Runtime
	tap     *EventTap

	stats    rt.Stats
	events   []types.Event
	width    int
	quitting bool
}

// NewMonitorModel creates a monitor over the given runtime and tap.
func NewMonitorModel(runtime *rt.Runtime, tap *EventTap) MonitorModel {
	return MonitorModel{runtime: runtime, tap: tap}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.stats = m.runtime.Stats()
		m.events = m.tap.Snapshot()
		return m, tick()

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("dsv4l2 runtime monitor"))
	b.WriteString("\n\n")

	boxes := []string{
		m.statBox("Emitted", m.stats.Emitted),
		m.statBox("Dropped", m.stats.Dropped),
		m.statBox("Flushed", m.stats.Flushed),
		m.statBox("Ring", uint64(m.stats.Occupancy)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	b.WriteString(statLabelStyle.Render(fmt.Sprintf("level=%s capacity=%d max_occupancy=%d",
		m.stats.Level, m.stats.Capacity, m.stats.MaxOccupancy)))
	b.WriteString("\n\n")

	for i := range m.events {
		ev := &m.events[i]
		sev := ev.Severity.String()
		row := fmt.Sprintf("%-12d %08x %-20s %s aux=%d",
			ev.TsNs, ev.DevID, ev.Type.String(), sev, ev.Aux)
		b.WriteString(severityStyle(sev).Render(sev[:1]))
		b.WriteString(" ")
		b.WriteString(eventRowStyle.Render(row))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func (m MonitorModel) statBox(label string, value uint64) string {
	content := statValueStyle.Render(fmt.Sprintf("%d", value)) + "\n" +
		statLabelStyle.Render(label)
	return statBoxStyle.Render(content)
}

// Run starts the monitor program and blocks until quit.
func Run(runtime *rt.Runtime, tap *EventTap) error {
	p := tea.NewProgram(NewMonitorModel(runtime, tap), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
