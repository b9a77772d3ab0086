// Package tui is the interactive chat front end.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Processor answers one utterance.
type Processor interface {
	Process(ctx context.Context, input string) string
}

// TUI implements ui.UI by forwarding to a running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	noteStyle = lipgloss.NewStyle().
			Faint(true)
)

type LogMsg string
type StatusMsg string
type replyMsg string

type Model struct {
	Name     string
	Status   string
	Lines    []string
	Input    textinput.Model
	Viewport viewport.Model
	Spinner  spinner.Model
	Thinking bool
	Quitting bool
	Ready    bool

	ctx     context.Context
	proc    Processor
	isExit  func(string) bool
	goodbye string
}

// NewModel builds a chat model. isExit decides which inputs end the session.
func NewModel(ctx context.Context, name, greeting string, proc Processor, isExit func(string) bool) Model {
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.Focus()
	in.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		Name:    name,
		Status:  "Ready",
		Input:   in,
		Spinner: sp,
		ctx:     ctx,
		proc:    proc,
		isExit:  isExit,
		goodbye: "Goodbye! Have a great day!",
	}
	if greeting != "" {
		m.Lines = append(m.Lines, m.assistantLine(greeting))
	}
	return m
}

func (m Model) assistantLine(text string) string {
	return infoStyle.Render(m.Name+":") + " " + text
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.Spinner.Tick)
}

func (m Model) ask(text string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg(m.proc.Process(m.ctx, text))
	}
}

func (m *Model) refresh() {
	m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
	m.Viewport.GotoBottom()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.Input.Value())
			if text == "" || m.Thinking {
				return m, nil
			}
			m.Input.Reset()
			m.Lines = append(m.Lines, userStyle.Render("You:")+" "+text)
			if m.isExit != nil && m.isExit(text) {
				m.Lines = append(m.Lines, m.assistantLine(m.goodbye))
				m.refresh()
				m.Quitting = true
				return m, tea.Quit
			}
			m.Thinking = true
			m.refresh()
			return m, m.ask(text)
		}
		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-6)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 6
		}
		m.Input.Width = msg.Width - 4
		m.refresh()

	case replyMsg:
		m.Thinking = false
		m.Lines = append(m.Lines, m.assistantLine(string(msg)))
		m.refresh()

	case LogMsg:
		m.Lines = append(m.Lines, noteStyle.Render("  "+string(msg)))
		m.refresh()

	case StatusMsg:
		m.Status = string(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	status := infoStyle.Render(fmt.Sprintf(" %s ", m.Status))
	if m.Thinking {
		status = m.Spinner.View() + status
	}
	header := titleStyle.Render(" "+m.Name+" ") + " " + status

	view := fmt.Sprintf("%s\n\n%s\n\n%s", header, m.Viewport.View(), m.Input.View())
	if m.Quitting {
		return view + "\n"
	}
	return view
}
