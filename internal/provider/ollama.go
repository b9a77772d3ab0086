package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	client     *api.Client
	model      string
	embedModel string
}

// NewOllamaProvider talks to a local Ollama server. OLLAMA_HOST overrides
// baseURL when set.
func NewOllamaProvider(baseURL, model, embedModel string) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.2"
	}
	if embedModel == "" {
		embedModel = model
	}

	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		baseURL = envURL
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	client := api.NewClient(uri, http.DefaultClient)

	return &OllamaProvider{
		client:     client,
		model:      model,
		embedModel: embedModel,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Generate sends the prompt verbatim (no chat template) since the prompt
// already carries the persona and the reply cue.
func (p *OllamaProvider) Generate(ctx context.Context, r Request) (*Response, error) {
	options := map[string]any{
		"temperature": r.Temperature,
		"top_p":       r.TopP,
	}
	if r.MaxTokens > 0 {
		options["num_predict"] = r.MaxTokens
	}
	if r.ContextLength > 0 {
		options["num_ctx"] = r.ContextLength
	}
	if len(r.Stop) > 0 {
		options["stop"] = r.Stop
	}

	req := &api.GenerateRequest{
		Model:   p.model,
		Prompt:  r.Prompt,
		Raw:     true,
		Stream:  new(bool), // false
		Options: options,
	}

	var content string
	var promptTokens, evalTokens int

	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		content += resp.Response
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			evalTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate failed: %w", err)
	}

	return &Response{
		Content: content,
		Usage:   usageFromTokens(promptTokens, evalTokens),
	}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &api.EmbeddingRequest{
		Model:  p.embedModel,
		Prompt: text,
	}
	resp, err := p.client.Embeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings failed: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
