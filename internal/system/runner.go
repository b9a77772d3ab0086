// Package system carries out host actions for voice commands: volume,
// brightness, battery and storage reports, application launching and file
// search. Every operation answers with a sentence suitable for speech.
package system

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout bounds every helper command.
const DefaultTimeout = 10 * time.Second

// Runner executes host helper commands.
type Runner interface {
	// Run waits for the command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Start launches a detached process and returns once it has started.
	Start(name string, args ...string) error
}

type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...) // #nosec G204
	out, err := cmd.CombinedOutput()
	if err != nil && execCtx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("%s timed out after %s", name, timeout)
	}
	return out, err
}

func (r ExecRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...) // #nosec G204
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
