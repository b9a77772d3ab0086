package config

import "fmt"

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

var knownProviders = map[string]bool{
	"ollama": true, "openai": true, "gemini": true, "anthropic": true, "cli": true, "stub": true,
}

// Validate checks the configuration for values the assistant cannot run with
// (errors) and values that are likely mistakes (warnings).
func (c *Config) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	// voice
	if c.Voice.WakeWord == "" && !c.Voice.AlwaysListening {
		fail("voice.wake_word is required unless voice.always_listening is set")
	}
	if c.Voice.SpeechRate <= 0 {
		fail("voice.speech_rate must be positive, got %d", c.Voice.SpeechRate)
	}
	if c.Voice.SpeechVolume < 0 || c.Voice.SpeechVolume > 1 {
		fail("voice.speech_volume must be between 0 and 1, got %g", c.Voice.SpeechVolume)
	}
	switch c.Voice.Synthesizer {
	case "", "auto", "exec", "console":
	default:
		fail("voice.synthesizer must be auto, exec or console, got %q", c.Voice.Synthesizer)
	}

	// llm
	if !knownProviders[c.LLM.Provider] {
		fail("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		fail("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		fail("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.TopP <= 0 || c.LLM.TopP > 1 {
		fail("llm.top_p must be in (0, 1], got %g", c.LLM.TopP)
	}
	if c.LLM.ContextLength > 0 && c.LLM.ContextLength <= c.LLM.MaxTokens {
		warn("llm.context_length (%d) leaves no room for the prompt with max_tokens %d", c.LLM.ContextLength, c.LLM.MaxTokens)
	}
	if c.LLM.Provider == "cli" && c.LLM.ModelPath == "" {
		warn("llm.model_path is empty; the cli provider will pass the prompt as a plain argument")
	}

	// memory
	if c.Memory.MemoryDBPath == "" {
		fail("memory.memory_db_path is required")
	}
	if c.Memory.VectorDBPath == "" {
		warn("memory.vector_db_path is empty; semantic search will be disabled")
	}
	if c.Memory.MaxShortTermMemory <= 0 {
		fail("memory.max_short_term_memory must be positive, got %d", c.Memory.MaxShortTermMemory)
	}
	if c.Memory.RetentionDays <= 0 {
		warn("memory.retention_days is %d; old conversations will never be purged", c.Memory.RetentionDays)
	}

	// system
	if c.System.MaxSearchResults <= 0 {
		warn("system.max_search_results is %d; file search will return nothing", c.System.MaxSearchResults)
	}
	if len(c.System.AllowedApps) == 0 {
		warn("system.allowed_apps is empty; no application can be opened")
	}

	return res
}
