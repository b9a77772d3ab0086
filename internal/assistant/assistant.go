// Package assistant turns utterances into replies. Commands recognized by
// the dispatcher are handled directly; everything else goes to the language
// model with a prompt built from memory.
package assistant

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/commandecho/internal/command"
	"github.com/felixgeelhaar/commandecho/internal/observe"
	"github.com/felixgeelhaar/commandecho/internal/prompt"
	"github.com/felixgeelhaar/commandecho/internal/provider"
	"github.com/felixgeelhaar/commandecho/internal/speech"
	"github.com/felixgeelhaar/commandecho/internal/store"
)

const farewell = "Goodbye! Have a great day!"

// Memory is what the assistant needs from the memory façade.
type Memory interface {
	RecordTurn(ctx context.Context, role, content string) error
	UserPreference(ctx context.Context, key, def string) (string, error)
}

// Dispatcher handles recognized commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (string, bool)
	Match(text string) (command.Match, bool)
}

// Speaker receives replies in Run.
type Speaker interface {
	Speak(text string, priority bool)
}

// Generation carries sampling settings for the model.
type Generation struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	ContextLength int
}

type Deps struct {
	Memory     Memory
	Dispatcher Dispatcher
	Builder    *prompt.Builder
	Generator  provider.Generator
	Speaker    Speaker
	Observer   *observe.Observer
	Bus        *EventBus
	Generation Generation
	SessionID  string
}

type Assistant struct {
	memory     Memory
	dispatcher Dispatcher
	builder    *prompt.Builder
	generator  provider.Generator
	speaker    Speaker
	obs        *observe.Observer
	bus        *EventBus
	gen        Generation
	session    string
	now        func() time.Time
}

func New(d Deps) (*Assistant, error) {
	if d.Memory == nil {
		return nil, errors.New("assistant: memory is required")
	}
	if d.Dispatcher == nil {
		return nil, errors.New("assistant: dispatcher is required")
	}
	if d.Builder == nil {
		return nil, errors.New("assistant: prompt builder is required")
	}
	obs := d.Observer
	if obs == nil {
		obs = observe.Discard()
	}
	bus := d.Bus
	if bus == nil {
		bus = NewEventBus()
	}
	return &Assistant{
		memory:     d.Memory,
		dispatcher: d.Dispatcher,
		builder:    d.Builder,
		generator:  d.Generator,
		speaker:    d.Speaker,
		obs:        obs,
		bus:        bus,
		gen:        d.Generation,
		session:    d.SessionID,
		now:        time.Now,
	}, nil
}

// Bus returns the event bus the assistant publishes to.
func (a *Assistant) Bus() *EventBus {
	return a.bus
}

func (a *Assistant) publish(t EventType, data map[string]any) {
	a.bus.PublishWithData(t, a.session, data)
}

// Process answers one utterance. It never fails: problems are logged and
// answered with a fallback reply. Both turns are recorded afterwards.
func (a *Assistant) Process(ctx context.Context, input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	ctx, span := a.obs.StartSpan(ctx, "assistant.process")
	defer span.End()

	a.obs.Log().Info().Str("input", input).Msg("utterance received")
	a.publish(EventInputReceived, map[string]any{"input": input})

	var reply string
	if m, ok := a.dispatcher.Match(input); ok {
		a.publish(EventCommandMatched, map[string]any{"category": m.Category})
		reply, _ = a.dispatcher.Dispatch(ctx, input)
	} else {
		reply = a.generate(ctx, input)
	}

	a.record(ctx, store.RoleUser, input)
	a.record(ctx, store.RoleAssistant, reply)

	a.publish(EventResponseReady, map[string]any{"response": reply})
	return reply
}

func (a *Assistant) record(ctx context.Context, role, content string) {
	if err := a.memory.RecordTurn(ctx, role, content); err != nil {
		a.obs.Log().Error().Err(err).Str("role", role).Msg("failed to record turn")
		return
	}
	a.publish(EventTurnRecorded, map[string]any{"role": role})
}

func (a *Assistant) generate(ctx context.Context, input string) string {
	if a.generator == nil {
		return a.fallback(input, "no language model configured")
	}

	p, err := a.builder.Build(ctx, input)
	if err != nil {
		a.obs.Log().Error().Err(err).Msg("failed to build prompt")
		return a.fallback(input, err.Error())
	}

	a.publish(EventLLMRequest, map[string]any{"prompt_chars": len(p)})
	resp, err := a.generator.Generate(ctx, provider.Request{
		Prompt:        p,
		MaxTokens:     a.gen.MaxTokens,
		Temperature:   a.gen.Temperature,
		TopP:          a.gen.TopP,
		Stop:          prompt.StopSequences(),
		ContextLength: a.gen.ContextLength,
	})
	if err != nil {
		a.obs.Log().Warn().Err(err).Msg("generation failed")
		return a.fallback(input, err.Error())
	}

	text := a.builder.Clean(resp.Content)
	if text == "" {
		return a.fallback(input, "empty response")
	}
	a.publish(EventLLMResponse, map[string]any{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})
	return text
}

func (a *Assistant) fallback(input, reason string) string {
	a.publish(EventLLMFallback, map[string]any{"reason": reason})
	return Fallback(input, a.now())
}

// Greeting welcomes the user by name when one is known.
func (a *Assistant) Greeting(ctx context.Context) string {
	name, err := a.memory.UserPreference(ctx, "name", "")
	if err != nil || name == "" {
		return "Hello! I'm " + a.builder.AssistantName() + ", your personal AI assistant. How can I help you today?"
	}
	return "Hello " + name + ", " + a.builder.AssistantName() + " is ready. How can I assist you today?"
}

// IsExit reports whether an utterance ends the session.
func IsExit(text string) bool {
	lower := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!?"))
	switch lower {
	case "quit", "exit", "bye":
		return true
	}
	for _, phrase := range []string{"goodbye", "bye bye", "stop listening"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Run greets the user, then handles utterances one at a time until the
// listener is exhausted, an exit phrase is heard or ctx is done.
func (a *Assistant) Run(ctx context.Context, l speech.Listener) error {
	a.respond(a.Greeting(ctx))

	for {
		if ctx.Err() != nil {
			return nil
		}
		text, err := l.Listen(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, speech.ErrNoSpeech):
			continue
		case ctx.Err() != nil:
			return nil
		default:
			a.obs.Log().Error().Err(err).Msg("listen failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if IsExit(text) {
			a.respond(farewell)
			return nil
		}
		a.respond(a.Process(ctx, text))
	}
}

func (a *Assistant) respond(text string) {
	if a.speaker == nil || text == "" {
		return
	}
	a.speaker.Speak(text, false)
}
