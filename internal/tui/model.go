// Package tui is the terminal front end: a conversation log, a command
// line with history recall and a listening indicator.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"proton/internal/assistant"
)

// Controller is the part of the processor the UI drives.
type Controller interface {
	Submit(ctx context.Context, text string) error
	ToggleListening(ctx context.Context) (bool, error)
	RecallPrevious(ctx context.Context) (string, bool, error)
	RecallNext(ctx context.Context) (string, bool, error)
	Done() <-chan struct{}
}

type (
	recallMsg struct {
		text string
		ok   bool
	}
	failedMsg struct{ err error }
	doneMsg   struct{}
)

const levelWidth = 20

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#5A56E0")).Padding(0, 1)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	levelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

type Model struct {
	ctl  Controller
	ctx  context.Context
	name string

	input  textinput.Model
	log    viewport.Model
	lines  []string
	status assistant.Status
	level  float64

	width int
	ready bool
}

func New(ctx context.Context, ctl Controller, name string) *Model {
	in := textinput.New()
	in.Placeholder = "Type a command, F1 for help"
	in.Prompt = "> "
	in.CharLimit = 512
	in.Focus()

	return &Model{
		ctl:    ctl,
		ctx:    ctx,
		name:   name,
		input:  in,
		log:    viewport.New(80, 20),
		status: assistant.Status{Active: true},
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitDone())
}

func (m *Model) waitDone() tea.Cmd {
	done := m.ctl.Done()
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 4
		m.log.Width = msg.Width
		m.log.Height = max(msg.Height-3, 1)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case assistantMsg:
		m.appendLine(assistantStyle.Render(m.name+":") + " " + msg.text)
	case userMsg:
		who := "You"
		if msg.origin == assistant.Voice {
			who = "You (voice)"
		}
		m.appendLine(userStyle.Render(who+":") + " " + msg.text)
	case errorMsg:
		m.appendLine(errorStyle.Render("Error: " + msg.text))
	case failedMsg:
		m.appendLine(errorStyle.Render("Error: " + msg.err.Error()))
	case levelMsg:
		m.level = float64(msg)
	case statusMsg:
		m.status = assistant.Status(msg)
		if !m.status.Listening {
			m.level = 0
		}
	case clearMsg:
		m.lines = nil
		m.refresh()
	case recallMsg:
		if msg.ok {
			m.input.SetValue(msg.text)
			m.input.CursorEnd()
		}
	case doneMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		return m, m.submit(text)

	case tea.KeyUp:
		return m, m.recall(m.ctl.RecallPrevious)

	case tea.KeyDown:
		return m, m.recall(m.ctl.RecallNext)

	case tea.KeyCtrlL:
		return m, m.toggle()

	case tea.KeyF1:
		for _, line := range strings.Split(assistant.Help(), "\n") {
			m.appendLine(dimStyle.Render(line))
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(text string) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctl.Submit(m.ctx, text); err != nil {
			return failedMsg{err}
		}
		return nil
	}
}

func (m *Model) toggle() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.ctl.ToggleListening(m.ctx); err != nil {
			return failedMsg{err}
		}
		return nil
	}
}

func (m *Model) recall(step func(context.Context) (string, bool, error)) tea.Cmd {
	return func() tea.Msg {
		text, ok, err := step(m.ctx)
		if err != nil {
			return failedMsg{err}
		}
		return recallMsg{text: text, ok: ok}
	}
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *Model) refresh() {
	content := strings.Join(m.lines, "\n")
	if m.width > 0 {
		content = lipgloss.NewStyle().Width(m.width).Render(content)
	}
	m.log.SetContent(content)
	m.log.GotoBottom()
}

func (m *Model) statusLine() string {
	state := "Ready"
	switch {
	case !m.status.Active:
		state = "Asleep"
	case m.status.Listening:
		state = "Listening..."
	}

	line := titleStyle.Render(m.name) + " " + state
	if m.status.Listening {
		line += " " + levelBar(m.level)
	}
	return line + dimStyle.Render("  ctrl+l listen · ↑/↓ history · F1 help · esc quit")
}

func levelBar(level float64) string {
	filled := int(min(max(level, 0), 1)*levelWidth + 0.5)
	return "[" + levelStyle.Render(strings.Repeat("█", filled)) + strings.Repeat(" ", levelWidth-filled) + "]" +
		fmt.Sprintf(" %3d%%", int(level*100+0.5))
}

func (m *Model) View() string {
	if !m.ready {
		return "Starting " + m.name + "..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		m.log.View(),
		m.input.View(),
	)
}
