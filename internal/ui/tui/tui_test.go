package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type echoProcessor struct {
	inputs []string
}

func (e *echoProcessor) Process(_ context.Context, input string) string {
	e.inputs = append(e.inputs, input)
	return "echo: " + input
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func newTestModel(proc Processor) Model {
	isExit := func(s string) bool { return s == "quit" }
	m := NewModel(context.Background(), "CommandEcho", "Hello!", proc, isExit)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestModel_Conversation(t *testing.T) {
	proc := &echoProcessor{}
	m := newTestModel(proc)

	if len(m.Lines) != 1 || !strings.Contains(m.Lines[0], "Hello!") {
		t.Fatalf("expected greeting line, got %v", m.Lines)
	}

	m = typeText(m, "open firefox")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if !m.Thinking {
		t.Error("expected model to be thinking")
	}
	if cmd == nil {
		t.Fatal("expected a command to process input")
	}

	reply := cmd()
	next, _ = m.Update(reply)
	m = next.(Model)

	if m.Thinking {
		t.Error("expected thinking to end after reply")
	}
	if len(proc.inputs) != 1 || proc.inputs[0] != "open firefox" {
		t.Errorf("expected processed input 'open firefox', got %v", proc.inputs)
	}
	last := m.Lines[len(m.Lines)-1]
	if !strings.Contains(last, "echo: open firefox") {
		t.Errorf("expected reply line, got %q", last)
	}
}

func TestModel_ExitPhrase(t *testing.T) {
	proc := &echoProcessor{}
	m := newTestModel(proc)

	m = typeText(m, "quit")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	if !m.Quitting {
		t.Error("expected model to quit")
	}
	if len(proc.inputs) != 0 {
		t.Error("expected exit phrase not to be processed")
	}
}

func TestModel_StatusAndLog(t *testing.T) {
	m := newTestModel(&echoProcessor{})

	next, _ := m.Update(StatusMsg("Asking the model..."))
	m = next.(Model)
	next, _ = m.Update(LogMsg("command: volume"))
	m = next.(Model)

	if m.Status != "Asking the model..." {
		t.Errorf("expected status update, got %q", m.Status)
	}
	if !strings.Contains(m.Lines[len(m.Lines)-1], "command: volume") {
		t.Errorf("expected log line, got %v", m.Lines)
	}
	if !strings.Contains(m.View(), "CommandEcho") {
		t.Error("expected header in view")
	}
}
