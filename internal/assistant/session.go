package assistant

import (
	"sync"
	"time"
)

// SessionStats summarizes one run of the assistant.
type SessionStats struct {
	SessionID        string
	Utterances       int
	Commands         int
	ModelCalls       int
	Fallbacks        int
	PromptTokens     int
	CompletionTokens int
	StartedAt        time.Time
	LastActivity     time.Time
}

// Tally keeps SessionStats current from bus events.
type Tally struct {
	mu    sync.RWMutex
	stats SessionStats
	now   func() time.Time
}

// NewTally subscribes to bus and starts counting.
func NewTally(bus *EventBus, sessionID string) *Tally {
	t := &Tally{now: time.Now}
	start := t.now()
	t.stats = SessionStats{SessionID: sessionID, StartedAt: start, LastActivity: start}
	bus.SubscribeAll(t.observe)
	return t
}

func (t *Tally) observe(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case EventInputReceived:
		t.stats.Utterances++
	case EventCommandMatched:
		t.stats.Commands++
	case EventLLMResponse:
		t.stats.ModelCalls++
		t.stats.PromptTokens += intValue(e.Data["prompt_tokens"])
		t.stats.CompletionTokens += intValue(e.Data["completion_tokens"])
	case EventLLMFallback:
		t.stats.Fallbacks++
	default:
		return
	}
	t.stats.LastActivity = t.now()
}

// Stats returns a snapshot.
func (t *Tally) Stats() SessionStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
