// Package command recognizes spoken system commands and routes them to the
// host collaborators and the memory façade.
//
// Rules are tried in a fixed order and the first category with a matching
// pattern wins, so "set volume to 50 and open notepad" is a volume command.
package command

import (
	"context"
	"regexp"
	"strings"
)

// Categories, in matching order.
const (
	CategoryVolume     = "volume"
	CategoryBrightness = "brightness"
	CategoryOpenApp    = "open_app"
	CategoryCloseApp   = "close_app"
	CategorySystemInfo = "system_info"
	CategoryFileSearch = "file_search"
	CategoryMemory     = "memory"
)

// MemoryCategory tags memories saved by "remember ..." and "save ...".
const MemoryCategory = "user_preference"

// Controller changes and reports on the host machine.
type Controller interface {
	SetVolume(ctx context.Context, level int) string
	AdjustVolume(ctx context.Context, delta int) string
	SetBrightness(ctx context.Context, level int) string
	BatteryInfo(ctx context.Context) string
	CurrentTime() string
	StorageInfo(ctx context.Context) string
	Info(ctx context.Context) string
	// Status reports load alerts, or every reading when verbose.
	Status(ctx context.Context, verbose bool) string
}

type Launcher interface {
	Launch(ctx context.Context, name string) string
	Close(ctx context.Context, name string) string
}

type FileSearcher interface {
	Search(ctx context.Context, term string) string
}

// Memory is the part of the memory façade commands write to.
type Memory interface {
	Remember(ctx context.Context, key, value string) error
	Recall(ctx context.Context, key string) (string, bool, error)
	StoreMemory(ctx context.Context, content, category string, meta map[string]string) (int64, error)
	StoreUserPreference(ctx context.Context, key, value string) error
}

// Match describes which rule recognized an utterance.
type Match struct {
	Category string
	// Pattern is the index of the matching pattern within its rule.
	Pattern int
	// Groups holds the capture groups, excluding the full match.
	Groups []string
	Text   string
}

// Group returns capture i trimmed of whitespace and trailing punctuation.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(m.Groups[i]), ".?!")
}

// Handler turns a match into a spoken reply. Handlers report problems in
// the reply rather than as errors.
type Handler func(ctx context.Context, m Match) string

type Rule struct {
	Category string
	Patterns []*regexp.Regexp
	Handler  Handler
}

// compile builds case-insensitive patterns. Matching runs on the input as
// given so captured names keep their case.
func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}
