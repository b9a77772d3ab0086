package provider

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by providers that cannot serve a capability,
// e.g. embeddings from a text-only backend.
var ErrNotSupported = errors.New("not supported by provider")

// Request is a single raw-prompt completion request.
type Request struct {
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	Stop          []string `json:"stop,omitempty"`
	ContextLength int      `json:"context_length,omitempty"`
}

// Response represents the output from the model.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider defines the interface for language model backends.
type Provider interface {
	Generator
	Embedder

	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

func usageFromTokens(prompt, completion int) Usage {
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
