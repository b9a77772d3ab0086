package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/commandecho/internal/assistant"
	"github.com/felixgeelhaar/commandecho/internal/command"
	"github.com/felixgeelhaar/commandecho/internal/config"
	"github.com/felixgeelhaar/commandecho/internal/credential"
	"github.com/felixgeelhaar/commandecho/internal/guard"
	"github.com/felixgeelhaar/commandecho/internal/memory"
	"github.com/felixgeelhaar/commandecho/internal/observe"
	"github.com/felixgeelhaar/commandecho/internal/prompt"
	"github.com/felixgeelhaar/commandecho/internal/provider"
	"github.com/felixgeelhaar/commandecho/internal/store"
	"github.com/felixgeelhaar/commandecho/internal/system"
)

// App holds every wired component for one CLI invocation.
type App struct {
	Config    *config.Config
	Observer  *observe.Observer
	Store     *store.SQLiteStore
	Memory    *memory.Manager
	Provider  provider.Provider
	Assistant *assistant.Assistant
	Vault     *credential.Vault
	Tally     *assistant.Tally

	closers []io.Closer
}

// NewApp opens the stores and builds the assistant. A provider that cannot
// be constructed is logged and left nil so the assistant answers with
// fallback replies.
func NewApp(ctx context.Context, cfg *config.Config, obs *observe.Observer, speaker assistant.Speaker) (*App, error) {
	st, err := store.NewSQLiteStore(cfg.Memory.MemoryDBPath, cfg.Memory.MaxShortTermMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	app := &App{Config: cfg, Observer: obs, Store: st}

	if v, err := credential.NewVault(st); err != nil {
		obs.Log().Warn().Err(err).Msg("stored API keys unavailable")
	} else {
		app.Vault = v
	}

	opts := llmOptions(cfg)
	opts.APIKey = app.apiKey(ctx, cfg.LLM.Provider, cfg.LLM.APIKeyEnv)
	p, err := provider.New(opts)
	if err != nil {
		obs.Log().Warn().Err(err).Str("provider", cfg.LLM.Provider).Msg("language model unavailable")
	} else {
		app.Provider = p
		app.track(p)
	}

	var emb memory.Embedder
	if e := app.embedder(ctx, cfg); e != nil {
		emb = e
	}

	mgr, err := memory.New(ctx, memory.Options{
		Store:       st,
		Embedder:    emb,
		IndexDir:    cfg.Memory.VectorDBPath,
		StrictIndex: cfg.Memory.StrictIndex,
		Observer:    obs,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Memory = mgr

	g := guard.New(guard.Policy{
		AllowedApps:      cfg.System.AllowedApps,
		DeniedPaths:      cfg.System.DeniedPaths,
		MaxSearchResults: cfg.System.MaxSearchResults,
	})
	runner := system.ExecRunner{Timeout: time.Duration(cfg.System.CommandTimeout) * time.Second}
	host := system.LocalHost{}

	dispatcher := command.New(command.Deps{
		Controller: system.NewController(runner, host),
		Launcher:   system.NewLauncher(runner, host, g, cfg.System.AppAliases),
		Files:      system.NewFileSearcher(cfg.System.SearchRoots, g),
		Memory:     mgr,
		Observer:   obs,
	})

	bus := assistant.NewEventBus()
	bus.SubscribeAll(func(e assistant.Event) {
		obs.Log().Debug().Str("event", string(e.Type)).Str("session", e.SessionID).Msg("assistant event")
	})

	app.Tally = assistant.NewTally(bus, st.Session())

	var gen provider.Generator
	if app.Provider != nil {
		gen = app.Provider
	}
	a, err := assistant.New(assistant.Deps{
		Memory:     mgr,
		Dispatcher: dispatcher,
		Builder:    prompt.New(mgr, ""),
		Generator:  gen,
		Speaker:    speaker,
		Observer:   obs,
		Bus:        bus,
		Generation: assistant.Generation{
			MaxTokens:     cfg.LLM.MaxTokens,
			Temperature:   cfg.LLM.Temperature,
			TopP:          cfg.LLM.TopP,
			ContextLength: cfg.LLM.ContextLength,
		},
		SessionID: st.Session(),
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Assistant = a
	return app, nil
}

func llmOptions(cfg *config.Config) provider.Options {
	return provider.Options{
		Name:       cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.Memory.EmbeddingModel,
		ModelPath:  cfg.LLM.ModelPath,
		BaseURL:    cfg.LLM.BaseURL,
		Binary:     cfg.LLM.Binary,
		Args:       cfg.LLM.Args,
	}
}

// apiKey prefers the environment and falls back to a key sealed with
// "commandecho key set".
func (a *App) apiKey(ctx context.Context, name, keyEnv string) string {
	if k := provider.KeyFromEnv(name, keyEnv); k != "" {
		return k
	}
	if a.Vault == nil {
		return ""
	}
	k, ok, err := a.Vault.Lookup(ctx, name)
	if err != nil {
		a.Observer.Log().Warn().Err(err).Str("provider", name).Msg("failed to read stored API key")
		return ""
	}
	if !ok {
		return ""
	}
	return k
}

// embedder returns the provider used for memory embeddings. It is the
// language model provider unless memory.embedding_provider names another.
func (a *App) embedder(ctx context.Context, cfg *config.Config) provider.Embedder {
	name := cfg.Memory.EmbeddingProvider
	if name == "" || name == cfg.LLM.Provider {
		if a.Provider == nil {
			return nil
		}
		return a.Provider
	}

	opts := llmOptions(cfg)
	opts.Name = name
	opts.APIKey = a.apiKey(ctx, name, "")
	opts.BaseURL = ""
	p, err := provider.New(opts)
	if err != nil {
		a.Observer.Log().Warn().Err(err).Str("provider", name).Msg("embedding provider unavailable")
		return nil
	}
	a.track(p)
	return p
}

func (a *App) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// PurgeExpired applies memory.retention_days to conversation history.
func (a *App) PurgeExpired(ctx context.Context) {
	days := a.Config.Memory.RetentionDays
	if days <= 0 {
		return
	}
	if _, err := a.Memory.PurgeOlderThan(ctx, time.Duration(days)*24*time.Hour); err != nil {
		a.Observer.Log().Warn().Err(err).Msg("failed to purge old conversation turns")
	}
}

// LogSummary reports the session totals.
func (a *App) LogSummary() {
	st := a.Tally.Stats()
	a.Observer.Log().Info().
		Str("session", st.SessionID).
		Int("utterances", st.Utterances).
		Int("commands", st.Commands).
		Int("model_calls", st.ModelCalls).
		Int("fallbacks", st.Fallbacks).
		Int("prompt_tokens", st.PromptTokens).
		Int("completion_tokens", st.CompletionTokens).
		Str("duration", st.LastActivity.Sub(st.StartedAt).Round(time.Second).String()).
		Msg("session finished")
}

func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.Memory != nil {
		_ = a.Memory.Close()
	} else if a.Store != nil {
		_ = a.Store.Close()
	}
}
