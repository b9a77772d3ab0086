package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CLIProvider runs a local inference binary once per request. With a model
// path it passes llama.cpp style flags; otherwise the prompt is appended to
// the configured arguments.
type CLIProvider struct {
	binaryPath string
	modelPath  string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath, modelPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) buildArgs(r Request) []string {
	fullArgs := append([]string(nil), p.args...)
	if p.modelPath == "" {
		return append(fullArgs, r.Prompt)
	}

	fullArgs = append(fullArgs,
		"-m", p.modelPath,
		"--no-display-prompt",
		"--temp", strconv.FormatFloat(r.Temperature, 'f', -1, 64),
		"--top-p", strconv.FormatFloat(r.TopP, 'f', -1, 64),
	)
	if r.MaxTokens > 0 {
		fullArgs = append(fullArgs, "-n", strconv.Itoa(r.MaxTokens))
	}
	if r.ContextLength > 0 {
		fullArgs = append(fullArgs, "-c", strconv.Itoa(r.ContextLength))
	}
	for _, s := range r.Stop {
		fullArgs = append(fullArgs, "-r", s)
	}
	return append(fullArgs, "-p", r.Prompt)
}

func (p *CLIProvider) Generate(ctx context.Context, r Request) (*Response, error) {
	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, p.buildArgs(r)...)

	output, err := cmd.Output()
	result := strings.TrimSpace(string(output))

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("cli model timed out: %w", err)
		}
		return nil, fmt.Errorf("cli model failed: %w\nOutput: %s", err, result)
	}

	// reverse prompts are echoed back at the end of the output
	for _, s := range r.Stop {
		if s = strings.TrimSpace(s); s != "" {
			result = strings.TrimSpace(strings.TrimSuffix(result, s))
		}
	}

	return &Response{
		Content: result,
		Usage:   usageFromTokens(0, len(strings.Fields(result))),
	}, nil
}

func (p *CLIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("cli embeddings: %w", ErrNotSupported)
}
