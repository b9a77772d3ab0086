package speech

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"sync"
	"time"

	"github.com/felixgeelhaar/commandecho/internal/system"
)

// Synthesizer renders one utterance and returns when it has finished.
type Synthesizer interface {
	Say(ctx context.Context, text string) error
}

// VoiceOptions carries the voice settings from configuration.
type VoiceOptions struct {
	Rate   int
	Volume float64
	// VoiceID selects a voice by index where the backend supports it.
	VoiceID int
	// Name prefixes console output.
	Name string
}

// ConsoleSynthesizer prints utterances instead of speaking them.
type ConsoleSynthesizer struct {
	mu   sync.Mutex
	out  io.Writer
	name string
}

func NewConsoleSynthesizer(out io.Writer, name string) *ConsoleSynthesizer {
	if name == "" {
		name = "CommandEcho"
	}
	return &ConsoleSynthesizer{out: out, name: name}
}

func (c *ConsoleSynthesizer) Say(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s: %s\n", c.name, text)
	return err
}

// ExecSynthesizer drives a command-line TTS engine: espeak, espeak-ng,
// spd-say or macOS say.
type ExecSynthesizer struct {
	binary string
	opts   VoiceOptions
	runner system.Runner
}

func NewExecSynthesizer(binary string, opts VoiceOptions, runner system.Runner) *ExecSynthesizer {
	if runner == nil {
		runner = system.ExecRunner{Timeout: 2 * time.Minute}
	}
	return &ExecSynthesizer{binary: binary, opts: opts, runner: runner}
}

func (e *ExecSynthesizer) Say(ctx context.Context, text string) error {
	out, err := e.runner.Run(ctx, e.binary, e.args(text)...)
	if err != nil {
		return fmt.Errorf("%s failed: %w (%s)", e.binary, err, out)
	}
	return nil
}

func (e *ExecSynthesizer) args(text string) []string {
	var args []string
	switch filepath.Base(e.binary) {
	case "say":
		if e.opts.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(e.opts.Rate))
		}
	case "spd-say":
		// spd-say takes rate and volume in -100..100
		args = append(args, "-w",
			"-r", strconv.Itoa(max(-100, min(100, (e.opts.Rate-175)/2))),
			"-i", strconv.Itoa(int(e.opts.Volume*200)-100))
	default: // espeak, espeak-ng
		if e.opts.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(e.opts.Rate))
		}
		args = append(args, "-a", strconv.Itoa(int(e.opts.Volume*200)))
		if e.opts.VoiceID > 0 {
			args = append(args, "-v", fmt.Sprintf("en+m%d", e.opts.VoiceID))
		}
	}
	return append(args, text)
}

var lookPath = exec.LookPath

// DetectEngine returns the first TTS binary found on PATH.
func DetectEngine() (string, bool) {
	candidates := []string{"espeak-ng", "espeak", "spd-say"}
	if goruntime.GOOS == "darwin" {
		candidates = append([]string{"say"}, candidates...)
	}
	for _, c := range candidates {
		if path, err := lookPath(c); err == nil {
			return path, true
		}
	}
	return "", false
}

// NewSynthesizer picks a backend: "console", "exec" (fails when no engine
// is installed) or "auto" (exec when available, console otherwise).
func NewSynthesizer(kind string, opts VoiceOptions, out io.Writer) (Synthesizer, error) {
	switch kind {
	case "console":
		return NewConsoleSynthesizer(out, opts.Name), nil
	case "exec":
		bin, ok := DetectEngine()
		if !ok {
			return nil, fmt.Errorf("no speech engine found (install espeak-ng or spd-say)")
		}
		return NewExecSynthesizer(bin, opts, nil), nil
	case "", "auto":
		if bin, ok := DetectEngine(); ok {
			return NewExecSynthesizer(bin, opts, nil), nil
		}
		return NewConsoleSynthesizer(out, opts.Name), nil
	default:
		return nil, fmt.Errorf("unknown synthesizer: %s", kind)
	}
}
