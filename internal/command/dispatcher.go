package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/commandecho/internal/observe"
)

type Deps struct {
	Controller Controller
	Launcher   Launcher
	Files      FileSearcher
	Memory     Memory
	Observer   *observe.Observer
}

// Dispatcher holds the ordered rule table.
type Dispatcher struct {
	rules []Rule
	deps  Deps
	obs   *observe.Observer
}

func New(deps Deps) *Dispatcher {
	obs := deps.Observer
	if obs == nil {
		obs = observe.Discard()
	}
	d := &Dispatcher{deps: deps, obs: obs}
	d.rules = []Rule{
		{CategoryVolume, compile(`set volume to (\d+)`, `volume (\d+)`, `turn volume (up|down)`), d.volume},
		{CategoryBrightness, compile(`set brightness to (\d+)`, `brightness (\d+)`), d.brightness},
		{CategoryOpenApp, compile(`open (.+)`, `launch (.+)`, `start (.+)`), d.openApp},
		{CategoryCloseApp, compile(`close (.+)`, `quit (.+)`, `exit (.+)`), d.closeApp},
		{CategorySystemInfo, compile(
			`battery`, `what time`, `current time`, `system info`, `storage`,
			`system status`, `how is my (?:pc|computer)`, `diagnose system`, `full system report`,
		), d.systemInfo},
		{CategoryFileSearch, compile(`find file (.+)`, `search for (.+)`, `locate (.+)`), d.fileSearch},
		{CategoryMemory, compile(
			`do you remember (.+)`,
			`remember that (.+)`,
			`remember (.+)`,
			`my name is (.+)`,
			`save (.+)`,
		), d.memory},
	}
	return d
}

// Rules returns the rule table in matching order.
func (d *Dispatcher) Rules() []Rule {
	return d.rules
}

// Match finds the first rule that recognizes text. Categories are tried in
// order, then patterns within the category.
func (d *Dispatcher) Match(text string) (Match, bool) {
	for _, r := range d.rules {
		for i, re := range r.Patterns {
			sub := re.FindStringSubmatch(text)
			if sub == nil {
				continue
			}
			return Match{Category: r.Category, Pattern: i, Groups: sub[1:], Text: text}, true
		}
	}
	return Match{}, false
}

// IsCommand reports whether text would be handled by Dispatch.
func (d *Dispatcher) IsCommand(text string) bool {
	_, ok := d.Match(text)
	return ok
}

// Dispatch runs the handler for the first matching rule. The boolean is
// false when no rule matched and the utterance should go to the model.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (string, bool) {
	m, ok := d.Match(text)
	if !ok {
		return "", false
	}
	ctx, span := d.obs.StartSpan(ctx, "command.dispatch", "category", m.Category)
	defer span.End()

	for _, r := range d.rules {
		if r.Category == m.Category {
			d.obs.Log().Debug().Str("category", m.Category).Int("pattern", m.Pattern).Msg("command matched")
			return r.Handler(ctx, m), true
		}
	}
	return "", false
}

const unavailable = "That feature isn't available right now."

func (d *Dispatcher) volume(ctx context.Context, m Match) string {
	if d.deps.Controller == nil {
		return unavailable
	}
	if m.Pattern == 2 {
		if strings.EqualFold(m.Group(0), "up") {
			return d.deps.Controller.AdjustVolume(ctx, 10)
		}
		return d.deps.Controller.AdjustVolume(ctx, -10)
	}
	level, err := strconv.Atoi(m.Group(0))
	if err != nil {
		return "I didn't catch the volume level."
	}
	return d.deps.Controller.SetVolume(ctx, level)
}

func (d *Dispatcher) brightness(ctx context.Context, m Match) string {
	if d.deps.Controller == nil {
		return unavailable
	}
	level, err := strconv.Atoi(m.Group(0))
	if err != nil {
		return "I didn't catch the brightness level."
	}
	return d.deps.Controller.SetBrightness(ctx, level)
}

func (d *Dispatcher) openApp(ctx context.Context, m Match) string {
	if d.deps.Launcher == nil {
		return unavailable
	}
	name := m.Group(0)
	if name == "" {
		return "I didn't catch which application to open."
	}
	return d.deps.Launcher.Launch(ctx, name)
}

func (d *Dispatcher) closeApp(ctx context.Context, m Match) string {
	if d.deps.Launcher == nil {
		return unavailable
	}
	name := m.Group(0)
	if name == "" {
		return "I didn't catch which application to close."
	}
	return d.deps.Launcher.Close(ctx, name)
}

func (d *Dispatcher) systemInfo(ctx context.Context, m Match) string {
	if d.deps.Controller == nil {
		return unavailable
	}
	lower := strings.ToLower(m.Text)
	switch {
	case strings.Contains(lower, "battery"):
		return d.deps.Controller.BatteryInfo(ctx)
	case strings.Contains(lower, "time"):
		return d.deps.Controller.CurrentTime()
	case strings.Contains(lower, "storage"):
		return d.deps.Controller.StorageInfo(ctx)
	case strings.Contains(lower, "diagnose") || strings.Contains(lower, "full system report"):
		return d.deps.Controller.Status(ctx, true)
	case strings.Contains(lower, "status") || strings.Contains(lower, "how is my"):
		return d.deps.Controller.Status(ctx, false)
	default:
		return d.deps.Controller.Info(ctx)
	}
}

func (d *Dispatcher) fileSearch(ctx context.Context, m Match) string {
	if d.deps.Files == nil {
		return unavailable
	}
	term := m.Group(0)
	if term == "" {
		return "I didn't catch what to search for."
	}
	return d.deps.Files.Search(ctx, term)
}

func (d *Dispatcher) memory(ctx context.Context, m Match) string {
	if d.deps.Memory == nil {
		return unavailable
	}
	content := m.Group(0)

	switch m.Pattern {
	case 0:
		return d.recallFact(ctx, content)
	case 1:
		return d.rememberFact(ctx, content)
	case 3:
		if content == "" {
			return "I didn't catch your name."
		}
		if err := d.deps.Memory.StoreUserPreference(ctx, "name", content); err != nil {
			d.obs.Log().Error().Err(err).Msg("failed to store name")
			return "I couldn't save that right now."
		}
		return fmt.Sprintf("Nice to meet you, %s! I'll remember your name.", content)
	default:
		if content == "" {
			return "I didn't catch what to remember."
		}
		if _, err := d.deps.Memory.StoreMemory(ctx, content, MemoryCategory, nil); err != nil {
			d.obs.Log().Error().Err(err).Msg("failed to store memory")
			return "I couldn't save that right now."
		}
		return "I've remembered that: " + content
	}
}

// rememberFact parses "<key> is <value>".
func (d *Dispatcher) rememberFact(ctx context.Context, content string) string {
	key, value, ok := splitFact(content)
	if !ok {
		return "I didn't catch what to remember."
	}
	if err := d.deps.Memory.Remember(ctx, key, value); err != nil {
		d.obs.Log().Error().Err(err).Msg("failed to store fact")
		return "I couldn't save that right now."
	}
	if _, err := d.deps.Memory.StoreMemory(ctx, content, MemoryCategory, map[string]string{"key": key}); err != nil {
		d.obs.Log().Warn().Err(err).Msg("fact stored without memory record")
	}
	return fmt.Sprintf("Got it. I'll remember that %s is %s.", key, value)
}

// recallFact looks up key. "that <key> is <value>" asks about key.
func (d *Dispatcher) recallFact(ctx context.Context, key string) string {
	if len(key) > 5 && strings.EqualFold(key[:5], "that ") {
		key = strings.TrimSpace(key[5:])
	}
	if k, _, ok := splitFact(key); ok {
		key = k
	}
	if key == "" {
		return "I didn't catch what you asked about."
	}
	value, ok, err := d.deps.Memory.Recall(ctx, key)
	if err != nil {
		d.obs.Log().Error().Err(err).Msg("failed to recall fact")
		return "I couldn't check my memory right now."
	}
	if !ok {
		return "I don't remember that yet."
	}
	return fmt.Sprintf("Yes, %s is %s.", key, value)
}

func splitFact(content string) (string, string, bool) {
	idx := strings.Index(strings.ToLower(content), " is ")
	if idx < 0 {
		return "", "", false
	}
	key := strings.TrimSpace(content[:idx])
	value := strings.TrimSpace(content[idx+len(" is "):])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}
