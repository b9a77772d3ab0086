// Package ui renders assistant activity for the terminal.
package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/commandecho/internal/assistant"
)

type UI interface {
	UpdateStatus(status string)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string) {}
func (s SilentUI) Log(msg string)             {}

// WriterUI prints status changes and log lines, one per line.
type WriterUI struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriterUI(out io.Writer) *WriterUI {
	return &WriterUI{out: out}
}

func (w *WriterUI) UpdateStatus(status string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "[%s]\n", status)
}

func (w *WriterUI) Log(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, msg)
}

// Statuses shown while an utterance is handled.
const (
	StatusThinking = "Thinking..."
	StatusAsking   = "Asking the model..."
	StatusReady    = "Ready"
)

// Attach forwards assistant events to u.
func Attach(bus *assistant.EventBus, u UI) {
	bus.SubscribeAll(func(e assistant.Event) {
		switch e.Type {
		case assistant.EventInputReceived:
			u.UpdateStatus(StatusThinking)
		case assistant.EventCommandMatched:
			u.Log(fmt.Sprintf("command: %v", e.Data["category"]))
		case assistant.EventLLMRequest:
			u.UpdateStatus(StatusAsking)
		case assistant.EventLLMFallback:
			u.Log(fmt.Sprintf("model unavailable (%v), using fallback reply", e.Data["reason"]))
		case assistant.EventResponseReady:
			u.UpdateStatus(StatusReady)
		}
	})
}
