// Package tui is the live monitor: a terminal view of the engine's
// playback state with transport keys.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Mouradif/aurio/internal/engine"
	"github.com/Mouradif/aurio/internal/project"
	"github.com/Mouradif/aurio/internal/timing"
)

const maxErrorHistory = 10

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	nodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// Model is the bubbletea model for the monitor.
type Model struct {
	commands    chan<- engine.Command
	updates     <-chan engine.Update
	projectPath string

	proj    *project.Project
	playing bool
	paused  bool
	nodes   []timing.TrackStatus
	errors  []string
	width   int
	height  int
}

// NewModel builds a monitor bound to a running engine. projectPath is used
// by the reload key.
func NewModel(commands chan<- engine.Command, updates <-chan engine.Update, projectPath string) *Model {
	return &Model{
		commands:    commands,
		updates:     updates,
		projectPath: projectPath,
	}
}

type updateMsg struct {
	update engine.Update
}

type reloadResultMsg struct {
	project *project.Project
	err     error
}

// Init starts listening for engine updates.
func (m *Model) Init() tea.Cmd {
	return m.listenUpdates
}

// listenUpdates blocks on one engine update and hands it to Update.
func (m *Model) listenUpdates() tea.Msg {
	u, ok := <-m.updates
	if !ok {
		return tea.Quit()
	}
	return updateMsg{update: u}
}

func (m *Model) reloadFromDisk() tea.Msg {
	p, err := project.Load(m.projectPath)
	return reloadResultMsg{project: p, err: err}
}

// Update routes messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case updateMsg:
		m.applyUpdate(msg.update)
		return m, m.listenUpdates

	case reloadResultMsg:
		if msg.err != nil {
			m.pushError(fmt.Sprintf("reload failed: %v", msg.err))
			return m, nil
		}
		m.commands <- engine.ReloadProject{Project: msg.project}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.commands <- engine.Stop{}
			return m, tea.Quit
		case "p":
			m.paused = false
			m.commands <- engine.Play{}
		case " ":
			if m.playing {
				m.paused = true
				m.commands <- engine.Pause{}
			} else {
				m.paused = false
				m.commands <- engine.Play{}
			}
		case "s":
			m.paused = false
			m.commands <- engine.Stop{}
		case "r":
			return m, m.reloadFromDisk
		}
	}

	return m, nil
}

func (m *Model) applyUpdate(u engine.Update) {
	switch u := u.(type) {
	case engine.ProjectLoaded:
		m.proj = u.Project
	case engine.PlaybackState:
		m.playing = u.Playing
		if u.Playing {
			m.paused = false
		}
	case engine.CurrentNodes:
		m.nodes = u.Nodes
	case engine.Error:
		m.pushError(u.Message)
	}
}

func (m *Model) pushError(msg string) {
	m.errors = append([]string{msg}, m.errors...)
	if len(m.errors) > maxErrorHistory {
		m.errors = m.errors[:maxErrorHistory]
	}
}

// View renders the monitor.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("AURIO") + "\n\n")

	if m.proj == nil {
		b.WriteString(subtitleStyle.Render("Loading project...") + "\n")
	} else {
		b.WriteString(subtitleStyle.Render("Project: ") + m.proj.Name + "\n")
		b.WriteString(subtitleStyle.Render("Tempo:   ") + fmt.Sprintf("%.0f bpm @ %d Hz", m.proj.BPM, m.proj.SampleRate) + "\n")
	}

	switch {
	case m.playing:
		b.WriteString(playingStyle.Render("▶ Playing") + "\n\n")
	case m.paused:
		b.WriteString(stoppedStyle.Render("⏸ Paused") + "\n\n")
	default:
		b.WriteString(stoppedStyle.Render("■ Stopped") + "\n\n")
	}

	b.WriteString(subtitleStyle.Render("Tracks:") + "\n")
	if m.proj == nil || len(m.proj.Tracks) == 0 {
		b.WriteString("  (none)\n")
	} else {
		current := make(map[int]string, len(m.nodes))
		for _, n := range m.nodes {
			current[n.TrackID] = n.NodeID
		}
		for i := range m.proj.Tracks {
			t := &m.proj.Tracks[i]
			node := current[t.ID]
			line := fmt.Sprintf("  %-2d %-12s ", t.ID, t.Name)
			switch {
			case !m.playing && !m.paused:
				line += stoppedStyle.Render("-")
			case node == "":
				line += errorStyle.Render("(silent)")
			default:
				line += nodeStyle.Render(node)
			}
			b.WriteString(line + "\n")
		}
	}

	if len(m.errors) > 0 {
		b.WriteString("\n" + subtitleStyle.Render("Errors:") + "\n")
		for _, e := range m.errors {
			b.WriteString("  " + errorStyle.Render(e) + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render("p: play • space: pause • s: stop • r: reload • q: quit"))

	return b.String()
}
