// Package ui contains the terminal monitor that tails a running
// automation session over its status feed.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/taimoss/geoguessr-ai-1/internal/status"
)

const maxLogLines = 200

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	phaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	coordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// eventMsg wraps one feed event for the update loop.
type eventMsg status.Event

// feedClosedMsg signals the websocket dropped.
type feedClosedMsg struct{}

// MonitorModel renders the live automation feed.
type MonitorModel struct {
	events <-chan status.Event

	spin     spinner.Model
	phase    string
	session  string
	round    int
	score    int
	lastLat  float64
	lastLon  float64
	hasCoord bool
	log      []string
	closed   bool
	width    int
	height   int
}

// NewMonitor creates the monitor model over a feed channel from
// status.Listen.
func NewMonitor(events <-chan status.Event) MonitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return MonitorModel{
		events: events,
		spin:   sp,
		phase:  "connecting",
	}
}

func (m MonitorModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Init starts the spinner and the feed reader.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForEvent())
}

// Update handles feed events and key presses.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case feedClosedMsg:
		m.closed = true
		m.phase = "disconnected"
		return m, nil
	case eventMsg:
		m.apply(status.Event(msg))
		return m, m.waitForEvent()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MonitorModel) apply(ev status.Event) {
	if ev.SessionID != "" {
		m.session = ev.SessionID
	}
	if ev.Round > 0 {
		m.round = ev.Round
	}

	var line string
	stamp := dimStyle.Render(ev.At.Format(time.Kitchen))
	switch ev.Type {
	case status.EventPhase:
		m.phase = ev.Phase
		line = fmt.Sprintf("%s %s", stamp, phaseStyle.Render(ev.Phase))
		if ev.Detail != "" {
			line += dimStyle.Render(" " + ev.Detail)
		}
	case status.EventCoordinate:
		m.lastLat, m.lastLon, m.hasCoord = ev.Lat, ev.Lon, true
		line = fmt.Sprintf("%s %s", stamp,
			coordStyle.Render(fmt.Sprintf("coords %.5f, %.5f", ev.Lat, ev.Lon)))
	case status.EventPrediction:
		line = fmt.Sprintf("%s prediction %.4f, %.4f %s", stamp, ev.Lat, ev.Lon,
			dimStyle.Render(ev.Country))
	case status.EventRound:
		m.score = ev.Score
		line = fmt.Sprintf("%s round %d done, score %d", stamp, ev.Round, ev.Score)
	case status.EventSupervisor:
		line = fmt.Sprintf("%s %s", stamp, errStyle.Render("supervisor: "+ev.Detail))
	case status.EventError:
		line = fmt.Sprintf("%s %s", stamp, errStyle.Render("error: "+ev.Detail))
	default:
		return
	}

	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// View renders the monitor.
func (m MonitorModel) View() string {
	var b strings.Builder

	header := titleStyle.Render("geoai monitor")
	if m.session != "" {
		header += dimStyle.Render("  " + m.session)
	}
	b.WriteString(header + "\n")

	statusLine := fmt.Sprintf("%s phase: %s  round: %d  score: %d",
		m.spin.View(), m.phase, m.round, m.score)
	if m.hasCoord {
		statusLine += fmt.Sprintf("  last coords: %.5f, %.5f", m.lastLat, m.lastLon)
	}
	if m.closed {
		statusLine = errStyle.Render("feed disconnected, press q to quit")
	}
	b.WriteString(statusLine + "\n\n")

	visible := m.log
	if limit := m.height - 5; limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	for _, line := range visible {
		b.WriteString(line + "\n")
	}

	b.WriteString(dimStyle.Render("\nq to quit"))
	return b.String()
}
