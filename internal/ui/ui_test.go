package ui

import (
	"bytes"
	"testing"

	"github.com/felixgeelhaar/commandecho/internal/assistant"
)

// MockUI implements UI interface for testing
type MockUI struct {
	StatusUpdates []string
	LogMessages   []string
}

func (m *MockUI) UpdateStatus(status string) {
	m.StatusUpdates = append(m.StatusUpdates, status)
}

func (m *MockUI) Log(msg string) {
	m.LogMessages = append(m.LogMessages, msg)
}

func TestUI_InterfaceMethods(t *testing.T) {
	uis := []UI{
		SilentUI{},
		&MockUI{},
		NewWriterUI(&bytes.Buffer{}),
	}

	for _, ui := range uis {
		// These should all work without panic
		ui.UpdateStatus("test")
		ui.Log("test")
	}
}

func TestWriterUI(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterUI(&buf)
	w.UpdateStatus("Ready")
	w.Log("command: volume")

	if buf.String() != "[Ready]\ncommand: volume\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestAttach(t *testing.T) {
	bus := assistant.NewEventBus()
	ui := &MockUI{}
	Attach(bus, ui)

	bus.PublishWithData(assistant.EventInputReceived, "", nil)
	bus.PublishWithData(assistant.EventCommandMatched, "", map[string]any{"category": "volume"})
	bus.PublishWithData(assistant.EventTurnRecorded, "", nil)
	bus.PublishWithData(assistant.EventResponseReady, "", nil)

	if len(ui.StatusUpdates) != 2 {
		t.Fatalf("expected 2 status updates, got %v", ui.StatusUpdates)
	}
	if ui.StatusUpdates[0] != StatusThinking || ui.StatusUpdates[1] != StatusReady {
		t.Errorf("unexpected statuses %v", ui.StatusUpdates)
	}
	if len(ui.LogMessages) != 1 || ui.LogMessages[0] != "command: volume" {
		t.Errorf("unexpected log messages %v", ui.LogMessages)
	}
}
