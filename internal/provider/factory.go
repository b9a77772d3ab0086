package provider

import (
	"fmt"
	"os"
)

// Options selects and configures a provider.
type Options struct {
	Name       string // ollama, openai, gemini, anthropic, cli, stub
	Model      string
	EmbedModel string
	ModelPath  string
	BaseURL    string
	APIKey     string
	Binary     string
	Args       []string
}

// defaultKeyEnv maps providers to the environment variable holding their key.
var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// KeyFromEnv resolves an API key, preferring keyEnv when given.
func KeyFromEnv(name, keyEnv string) string {
	if keyEnv != "" {
		return os.Getenv(keyEnv)
	}
	if env, ok := defaultKeyEnv[name]; ok {
		return os.Getenv(env)
	}
	return ""
}

// New builds the provider named in opts.
func New(opts Options) (Provider, error) {
	switch opts.Name {
	case "", "ollama":
		return NewOllamaProvider(opts.BaseURL, opts.Model, opts.EmbedModel)
	case "openai":
		return NewOpenAIProvider(opts.APIKey, opts.BaseURL, opts.Model, opts.EmbedModel)
	case "gemini":
		return NewGeminiProvider(opts.APIKey, opts.Model, opts.EmbedModel)
	case "anthropic":
		return NewAnthropicProvider(opts.APIKey, opts.BaseURL, opts.Model)
	case "cli":
		binary := opts.Binary
		if binary == "" {
			binary = "llama-cli"
		}
		return NewCLIProvider(binary, opts.ModelPath, opts.Args)
	case "stub":
		return NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Name)
	}
}
