package speech

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/commandecho/internal/system"
)

// ErrNoSpeech means a listen attempt produced no transcript. Callers
// should simply listen again.
var ErrNoSpeech = errors.New("no speech recognized")

// Listener yields one transcript per call. io.EOF ends the session.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// LineListener reads typed utterances, one per line.
type LineListener struct {
	scanner *bufio.Scanner
	prompt  io.Writer
	cue     string
}

// NewLineListener writes cue to prompt before each read when prompt is set.
func NewLineListener(in io.Reader, prompt io.Writer, cue string) *LineListener {
	return &LineListener{scanner: bufio.NewScanner(in), prompt: prompt, cue: cue}
}

func (l *LineListener) Listen(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.prompt != nil && l.cue != "" {
		fmt.Fprint(l.prompt, l.cue)
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	text := strings.TrimSpace(l.scanner.Text())
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// ExecListener runs an external recognizer per utterance and takes its
// standard output as the transcript, e.g. a whisper.cpp wrapper script.
type ExecListener struct {
	name   string
	args   []string
	runner system.Runner
}

func NewExecListener(command string, runner system.Runner) (*ExecListener, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("recognizer command is empty")
	}
	if runner == nil {
		runner = system.ExecRunner{Timeout: 30 * time.Second}
	}
	return &ExecListener{name: fields[0], args: fields[1:], runner: runner}, nil
}

func (l *ExecListener) Listen(ctx context.Context) (string, error) {
	out, err := l.runner.Run(ctx, l.name, l.args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("recognizer failed: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// WakeGate filters utterances that do not address the assistant.
type WakeGate struct {
	word            *regexp.Regexp
	alwaysListening bool
}

func NewWakeGate(wakeWord string, alwaysListening bool) WakeGate {
	g := WakeGate{alwaysListening: alwaysListening}
	if w := strings.TrimSpace(wakeWord); w != "" {
		g.word = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b[\s,.!?:;]*`)
	}
	return g
}

// Apply returns the command that follows the wake word. ok is false when
// the utterance should be ignored. An utterance that is only the wake word
// returns ok with an empty command.
func (g WakeGate) Apply(text string) (string, bool) {
	if g.word == nil {
		return strings.TrimSpace(text), true
	}
	loc := g.word.FindStringIndex(text)
	if loc == nil {
		if g.alwaysListening {
			return strings.TrimSpace(text), true
		}
		return "", false
	}
	return strings.TrimSpace(text[loc[1]:]), true
}

// GatedListener applies a WakeGate to another listener. When only the wake
// word is heard it listens once more for the command.
type GatedListener struct {
	inner Listener
	gate  WakeGate
}

func NewGatedListener(inner Listener, gate WakeGate) *GatedListener {
	return &GatedListener{inner: inner, gate: gate}
}

func (g *GatedListener) Listen(ctx context.Context) (string, error) {
	text, err := g.inner.Listen(ctx)
	if err != nil {
		return "", err
	}
	cmd, ok := g.gate.Apply(text)
	if !ok {
		return "", ErrNoSpeech
	}
	if cmd != "" {
		return cmd, nil
	}

	next, err := g.inner.Listen(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(next), nil
}
