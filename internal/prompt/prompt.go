// Package prompt assembles the text sent to the language model.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/commandecho/internal/store"
)

const (
	DefaultAssistantName = "CommandEcho"
	DefaultUserName      = "User"

	DefaultMemoryLimit = 3
	DefaultTurnLimit   = 5
)

// Source is the slice of the memory façade the builder reads from.
type Source interface {
	UserPreference(ctx context.Context, key, def string) (string, error)
	SearchMemories(ctx context.Context, query string, limit int) ([]string, error)
	RecentTurns(ctx context.Context, limit int) ([]store.Turn, error)
}

type Builder struct {
	src  Source
	name string

	MemoryLimit int
	TurnLimit   int
}

func New(src Source, assistantName string) *Builder {
	if assistantName == "" {
		assistantName = DefaultAssistantName
	}
	return &Builder{
		src:         src,
		name:        assistantName,
		MemoryLimit: DefaultMemoryLimit,
		TurnLimit:   DefaultTurnLimit,
	}
}

// AssistantName is the name used in the persona and the reply cue.
func (b *Builder) AssistantName() string {
	return b.name
}

// Build returns the prompt for utterance. Sections appear in a fixed order:
// persona, remembered facts, recent conversation, the utterance, and the
// reply cue. Empty sections are left out. A failed memory lookup drops that
// section; a failed turn lookup is returned.
func (b *Builder) Build(ctx context.Context, utterance string) (string, error) {
	user, err := b.src.UserPreference(ctx, "name", DefaultUserName)
	if err != nil || user == "" {
		user = DefaultUserName
	}

	memories, err := b.src.SearchMemories(ctx, utterance, b.MemoryLimit)
	if err != nil {
		memories = nil
	}

	turns, err := b.src.RecentTurns(ctx, b.TurnLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load recent turns: %w", err)
	}

	var parts []string
	parts = append(parts, b.persona(user))

	if len(memories) > 0 {
		parts = append(parts, "\nRelevant information I remember:")
		for _, m := range memories {
			parts = append(parts, "- "+m)
		}
	}

	if len(turns) > 0 {
		parts = append(parts, "\nRecent conversation:")
		for _, t := range turns {
			parts = append(parts, fmt.Sprintf("%s: %s", roleLabel(t.Role), t.Content))
		}
	}

	parts = append(parts, "\nUser: "+utterance)
	parts = append(parts, b.name+":")

	return strings.Join(parts, "\n"), nil
}

func (b *Builder) persona(user string) string {
	return fmt.Sprintf("You are %s, an intelligent AI assistant similar to Jarvis from Iron Man. "+
		"You are helpful, conversational, and have a slightly sophisticated personality. "+
		"You can control computer systems and remember information about the user. "+
		"The user's name is %s. "+
		"Keep responses concise but friendly.", b.name, user)
}

func roleLabel(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + strings.ToLower(role[1:])
}

// StopSequences ends generation before the model writes the user's next line.
func StopSequences() []string {
	return []string{"User:", "Human:", "\n\n"}
}

// Clean strips an echoed speaker prefix and drops a trailing sentence
// fragment shorter than ten characters.
func (b *Builder) Clean(response string) string {
	response = strings.TrimSpace(response)
	for _, prefix := range []string{b.name + ":", "Assistant:", "AI:"} {
		if strings.HasPrefix(response, prefix) {
			response = strings.TrimSpace(strings.TrimPrefix(response, prefix))
		}
	}

	sentences := strings.Split(response, ".")
	if len(sentences) > 1 && len(strings.TrimSpace(sentences[len(sentences)-1])) < 10 {
		response = strings.Join(sentences[:len(sentences)-1], ".") + "."
	}
	return strings.TrimSpace(response)
}
