// Package tui is a read-only dashboard over the command facade's fixed
// queries. It does not implement interactive mutation; claiming, editing,
// and gating stay in the CLI and facade.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/facade"
)

// KeyMap binds the keys this dashboard responds to.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Tab    key.Binding
	Quit   key.Binding
	Reload key.Binding
}

// DefaultKeyMap returns the dashboard's standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Tab:    key.NewBinding(key.WithKeys("tab")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c")),
		Reload: key.NewBinding(key.WithKeys("r")),
	}
}

// pane selects which fixed query the dashboard is currently showing.
type pane int

const (
	paneReady pane = iota
	paneBlocked
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model for the read-only status dashboard.
type Model struct {
	f      *facade.Facade
	keys   KeyMap
	active pane
	cursor int

	ready   []*domain.Issue
	blocked []*domain.Issue
	err     error

	width, height int
}

// New returns a Model backed by f.
func New(f *facade.Facade) Model {
	return Model{f: f, keys: DefaultKeyMap()}
}

// Init kicks off the first load.
func (m Model) Init() tea.Cmd {
	return m.reload
}

type loadedMsg struct {
	ready   []*domain.Issue
	blocked []*domain.Issue
	err     error
}

func (m Model) reload() tea.Msg {
	ready, err := m.f.QueryReady()
	if err != nil {
		return loadedMsg{err: err}
	}
	blocked, err := m.f.QueryBlocked()
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{ready: ready, blocked: blocked}
}

func (m Model) current() []*domain.Issue {
	if m.active == paneReady {
		return m.ready
	}
	return m.blocked
}

// Update handles key presses and the reload result.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		m.err = msg.err
		m.ready = msg.ready
		m.blocked = msg.blocked
		if m.cursor >= len(m.current()) {
			m.cursor = 0
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reload):
			return m, m.reload
		case key.Matches(msg, m.keys.Tab):
			if m.active == paneReady {
				m.active = paneBlocked
			} else {
				m.active = paneReady
			}
			m.cursor = 0
			return m, nil
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.current())-1 {
				m.cursor++
			}
			return m, nil
		}
	}
	return m, nil
}

// View renders the currently selected pane.
func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("error loading issues: %v\n", m.err)
	}

	title := "Ready"
	if m.active == paneBlocked {
		title = "Blocked"
	}

	out := headerStyle.Render(fmt.Sprintf("jit — %s (%d)", title, len(m.current()))) + "\n"
	for i, issue := range m.current() {
		line := fmt.Sprintf("%s  %s", shortID(issue.ID), issue.Title)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		out += line + "\n"
	}
	out += helpStyle.Render("tab: switch pane  r: reload  q: quit") + "\n"
	return out
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
