package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// blockingSynth records utterances and can hold the worker on the first one.
type blockingSynth struct {
	mu      sync.Mutex
	said    []string
	started chan string
	release chan struct{}
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{started: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingSynth) Say(_ context.Context, text string) error {
	b.started <- text
	<-b.release
	b.mu.Lock()
	b.said = append(b.said, text)
	b.mu.Unlock()
	return nil
}

func (b *blockingSynth) spoken() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.said...)
}

func waitStarted(t *testing.T, b *blockingSynth) string {
	t.Helper()
	select {
	case s := <-b.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for synthesis to start")
		return ""
	}
}

func TestSpeaker_FIFO(t *testing.T) {
	synth := newBlockingSynth()
	close(synth.release)
	s := NewSpeaker(synth, nil)
	defer s.Close()

	s.Speak("one", false)
	s.Speak("  ", false)
	s.Speak("two", false)
	s.Speak("three", false)
	s.Flush()

	got := strings.Join(synth.spoken(), ",")
	if got != "one,two,three" {
		t.Errorf("Expected 'one,two,three', got '%s'", got)
	}
}

func TestSpeaker_PriorityDropsBacklog(t *testing.T) {
	synth := newBlockingSynth()
	s := NewSpeaker(synth, nil)
	defer s.Close()

	s.Speak("first", false)
	if got := waitStarted(t, synth); got != "first" {
		t.Fatalf("Expected 'first' to start, got '%s'", got)
	}

	s.Speak("second", false)
	s.Speak("third", false)
	if s.Pending() != 2 {
		t.Errorf("Expected 2 pending, got %d", s.Pending())
	}
	s.Speak("urgent", true)
	if s.Pending() != 1 {
		t.Errorf("Expected backlog replaced by 1 item, got %d", s.Pending())
	}

	close(synth.release)
	s.Flush()

	got := strings.Join(synth.spoken(), ",")
	if got != "first,urgent" {
		t.Errorf("Expected 'first,urgent', got '%s'", got)
	}
}

func TestSpeaker_CloseFinishesCurrent(t *testing.T) {
	synth := newBlockingSynth()
	s := NewSpeaker(synth, nil)

	s.Speak("current", false)
	waitStarted(t, synth)
	s.Speak("dropped", false)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Expected Close to wait for the current utterance")
	case <-time.After(50 * time.Millisecond):
	}

	close(synth.release)
	<-done

	if got := strings.Join(synth.spoken(), ","); got != "current" {
		t.Errorf("Expected only 'current', got '%s'", got)
	}
	s.Speak("after close", false)
	if s.Pending() != 0 {
		t.Error("Expected Speak after Close to be ignored")
	}
}

func TestCleanForSpeech(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"This is **very** important", "This is very important"},
		{"Use the *ls* command or `grep`", "Use the ls command or grep"},
		{"See https://example.com/docs?a=1 for more", "See link for more"},
		{"  lots\n\nof   space ", "lots of space"},
	}
	for _, tc := range testCases {
		if got := CleanForSpeech(tc.in); got != tc.want {
			t.Errorf("Expected '%s', got '%s'", tc.want, got)
		}
	}
}

func TestConsoleSynthesizer(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSynthesizer(&buf, "")
	if err := c.Say(context.Background(), "Hello"); err != nil {
		t.Fatalf("Say failed: %v", err)
	}
	if buf.String() != "CommandEcho: Hello\n" {
		t.Errorf("Expected 'CommandEcho: Hello', got %q", buf.String())
	}
}

type recordingRunner struct {
	name string
	args []string
	out  string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name, r.args = name, args
	return []byte(r.out), r.err
}

func (r *recordingRunner) Start(string, ...string) error { return nil }

func TestExecSynthesizer_Args(t *testing.T) {
	opts := VoiceOptions{Rate: 200, Volume: 0.5}

	testCases := []struct {
		binary string
		want   string
	}{
		{"/usr/bin/espeak-ng", "-s 200 -a 100 hi"},
		{"say", "-r 200 hi"},
		{"spd-say", "-w -r 12 -i 0 hi"},
	}
	for _, tc := range testCases {
		t.Run(tc.binary, func(t *testing.T) {
			r := &recordingRunner{}
			if err := NewExecSynthesizer(tc.binary, opts, r).Say(context.Background(), "hi"); err != nil {
				t.Fatalf("Say failed: %v", err)
			}
			if got := strings.Join(r.args, " "); got != tc.want {
				t.Errorf("Expected args '%s', got '%s'", tc.want, got)
			}
		})
	}
}

func TestNewSynthesizer(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()
	lookPath = func(string) (string, error) { return "", errors.New("not found") }

	s, err := NewSynthesizer("auto", VoiceOptions{}, io.Discard)
	if err != nil {
		t.Fatalf("Expected auto to fall back, got %v", err)
	}
	if _, ok := s.(*ConsoleSynthesizer); !ok {
		t.Errorf("Expected console fallback, got %T", s)
	}
	if _, err := NewSynthesizer("exec", VoiceOptions{}, io.Discard); err == nil {
		t.Error("Expected error when no engine is installed")
	}
	if _, err := NewSynthesizer("robot", VoiceOptions{}, io.Discard); err == nil {
		t.Error("Expected error for unknown synthesizer")
	}

	lookPath = func(name string) (string, error) {
		if name == "espeak" {
			return "/usr/bin/espeak", nil
		}
		return "", errors.New("not found")
	}
	s, _ = NewSynthesizer("auto", VoiceOptions{}, io.Discard)
	if _, ok := s.(*ExecSynthesizer); !ok {
		t.Errorf("Expected exec synthesizer, got %T", s)
	}
}

func TestLineListener(t *testing.T) {
	var prompt bytes.Buffer
	l := NewLineListener(strings.NewReader("hello\n\n  open firefox  \n"), &prompt, "You: ")
	ctx := context.Background()

	if got, err := l.Listen(ctx); err != nil || got != "hello" {
		t.Errorf("Expected 'hello', got '%s' (%v)", got, err)
	}
	if _, err := l.Listen(ctx); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("Expected ErrNoSpeech for blank line, got %v", err)
	}
	if got, _ := l.Listen(ctx); got != "open firefox" {
		t.Errorf("Expected 'open firefox', got '%s'", got)
	}
	if _, err := l.Listen(ctx); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
	if strings.Count(prompt.String(), "You: ") != 4 {
		t.Errorf("Expected a cue per read, got %q", prompt.String())
	}
}

func TestExecListener(t *testing.T) {
	if _, err := NewExecListener("  ", nil); err == nil {
		t.Error("Expected error for empty command")
	}

	r := &recordingRunner{out: " what time is it \n"}
	l, err := NewExecListener("whisper-listen --model base", r)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Listen(context.Background())
	if err != nil || got != "what time is it" {
		t.Errorf("Expected 'what time is it', got '%s' (%v)", got, err)
	}
	if r.name != "whisper-listen" || strings.Join(r.args, " ") != "--model base" {
		t.Errorf("Unexpected invocation %s %v", r.name, r.args)
	}

	r.out = ""
	if _, err := l.Listen(context.Background()); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("Expected ErrNoSpeech, got %v", err)
	}
}

func TestWakeGate(t *testing.T) {
	gate := NewWakeGate("echo", false)

	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Echo, what time is it", "what time is it", true},
		{"hey echo open firefox", "open firefox", true},
		{"what time is it", "", false},
		{"echoes in the hall", "", false},
		{"echo", "", true},
	}
	for _, tc := range testCases {
		got, ok := gate.Apply(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Apply(%q): expected (%q, %v), got (%q, %v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}

	always := NewWakeGate("echo", true)
	if got, ok := always.Apply("what time is it"); !ok || got != "what time is it" {
		t.Errorf("Expected always-listening to pass through, got (%q, %v)", got, ok)
	}
}

type scriptedListener struct {
	lines []string
}

func (s *scriptedListener) Listen(context.Context) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func TestGatedListener(t *testing.T) {
	inner := &scriptedListener{lines: []string{"random chatter", "echo", "battery status", "echo volume 20"}}
	g := NewGatedListener(inner, NewWakeGate("echo", false))
	ctx := context.Background()

	if _, err := g.Listen(ctx); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("Expected chatter to be ignored, got %v", err)
	}
	if got, _ := g.Listen(ctx); got != "battery status" {
		t.Errorf("Expected follow-up command 'battery status', got '%s'", got)
	}
	if got, _ := g.Listen(ctx); got != "volume 20" {
		t.Errorf("Expected 'volume 20', got '%s'", got)
	}
	if _, err := g.Listen(ctx); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}
