package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag or COMMANDECHO_CONFIG is given.
const DefaultPath = "config/config.json"

// ErrMalformed marks a configuration file that exists but cannot be decoded.
// Load still returns usable defaults alongside it.
var ErrMalformed = errors.New("malformed configuration")

type Config struct {
	Voice  VoiceConfig  `json:"voice" yaml:"voice" toml:"voice"`
	LLM    LLMConfig    `json:"llm" yaml:"llm" toml:"llm"`
	Memory MemoryConfig `json:"memory" yaml:"memory" toml:"memory"`
	System SystemConfig `json:"system" yaml:"system" toml:"system"`
}

type VoiceConfig struct {
	WakeWord          string  `json:"wake_word" yaml:"wake_word" toml:"wake_word"`
	AlwaysListening   bool    `json:"always_listening" yaml:"always_listening" toml:"always_listening"`
	SpeechRate        int     `json:"speech_rate" yaml:"speech_rate" toml:"speech_rate"`
	SpeechVolume      float64 `json:"speech_volume" yaml:"speech_volume" toml:"speech_volume"`
	VoiceID           int     `json:"voice_id" yaml:"voice_id" toml:"voice_id"`
	Synthesizer       string  `json:"synthesizer" yaml:"synthesizer" toml:"synthesizer"` // auto, exec, console
	RecognizerCommand string  `json:"recognizer_command" yaml:"recognizer_command" toml:"recognizer_command"`
}

type LLMConfig struct {
	Provider      string   `json:"provider" yaml:"provider" toml:"provider"`
	Model         string   `json:"model" yaml:"model" toml:"model"`
	ModelPath     string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	Binary        string   `json:"binary,omitempty" yaml:"binary,omitempty" toml:"binary,omitempty"`
	Args          []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	BaseURL       string   `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKeyEnv     string   `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
	ContextLength int      `json:"context_length" yaml:"context_length" toml:"context_length"`
	MaxTokens     int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature   float64  `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          float64  `json:"top_p" yaml:"top_p" toml:"top_p"`
}

type MemoryConfig struct {
	MemoryDBPath       string `json:"memory_db_path" yaml:"memory_db_path" toml:"memory_db_path"`
	VectorDBPath       string `json:"vector_db_path" yaml:"vector_db_path" toml:"vector_db_path"`
	MaxShortTermMemory int    `json:"max_short_term_memory" yaml:"max_short_term_memory" toml:"max_short_term_memory"`
	EmbeddingProvider  string `json:"embedding_provider" yaml:"embedding_provider" toml:"embedding_provider"`
	EmbeddingModel     string `json:"embedding_model" yaml:"embedding_model" toml:"embedding_model"`
	StrictIndex        bool   `json:"strict_index" yaml:"strict_index" toml:"strict_index"`
	RetentionDays      int    `json:"retention_days" yaml:"retention_days" toml:"retention_days"`
}

// SystemConfig bounds what the OS collaborators may touch.
type SystemConfig struct {
	AllowedApps      []string          `json:"allowed_apps" yaml:"allowed_apps" toml:"allowed_apps"`
	AppAliases       map[string]string `json:"app_aliases" yaml:"app_aliases" toml:"app_aliases"`
	SearchRoots      []string          `json:"search_roots" yaml:"search_roots" toml:"search_roots"`
	DeniedPaths      []string          `json:"denied_paths" yaml:"denied_paths" toml:"denied_paths"`
	MaxSearchResults int               `json:"max_search_results" yaml:"max_search_results" toml:"max_search_results"`
	CommandTimeout   int               `json:"command_timeout_seconds" yaml:"command_timeout_seconds" toml:"command_timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Voice: VoiceConfig{
			WakeWord:     "echo",
			SpeechRate:   200,
			SpeechVolume: 0.9,
			Synthesizer:  "auto",
		},
		LLM: LLMConfig{
			Provider:      "ollama",
			Model:         "llama3.2",
			ModelPath:     "models/llama-3-8b-instruct.Q4_K_M.gguf",
			ContextLength: 4096,
			MaxTokens:     512,
			Temperature:   0.7,
			TopP:          0.9,
		},
		Memory: MemoryConfig{
			MemoryDBPath:       "data/memory/memory.db",
			VectorDBPath:       "data/memory/vectors",
			MaxShortTermMemory: 10,
			EmbeddingModel:     "all-minilm",
			RetentionDays:      30,
		},
		System: SystemConfig{
			AllowedApps:      []string{"*"},
			SearchRoots:      []string{"~/Desktop", "~/Documents", "~/Downloads"},
			DeniedPaths:      []string{"**/.ssh/**", "**/.gnupg/**", "**/.env"},
			MaxSearchResults: 5,
			CommandTimeout:   10,
		},
	}
}

// Load reads the file at path. A missing file is created with defaults.
// The returned config is always usable; a non-nil error is advisory and
// wraps ErrMalformed when the file could not be decoded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		cfg := Default()
		if errors.Is(err, fs.ErrNotExist) {
			if err := cfg.Save(path); err != nil {
				return cfg, fmt.Errorf("failed to write default config: %w", err)
			}
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return Default(), fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config format: %s (use .json, .yaml or .toml)", ext)
	}
}

// Save writes the configuration in the format implied by the file extension.
func (c *Config) Save(path string) error {
	var data []byte
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported config format: %s (use .json, .yaml or .toml)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Get looks up a dotted key such as "voice.wake_word". A known key with no
// value yields nil.
func (c *Config) Get(key string) (any, bool) {
	parts := strings.Split(key, ".")
	if _, ok := fieldType(parts); !ok {
		return nil, false
	}
	tree, err := c.tree()
	if err != nil {
		return nil, false
	}
	var cur any = tree
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, true
		}
		cur = m[part]
	}
	return cur, true
}

// Set assigns a dotted key. The value is parsed as JSON when possible so
// numbers and booleans keep their type; anything else is stored as a string.
// Map fields take entries by name, as in "system.app_aliases.editor".
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")
	if _, ok := fieldType(parts); !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	tree, err := c.tree()
	if err != nil {
		return err
	}

	cur := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	last := parts[len(parts)-1]

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	cur[last] = parsed

	next, err := fromTree(tree)
	if err != nil {
		if _, isString := parsed.(string); isString {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		// "123" for a string field
		cur[last] = value
		if next, err = fromTree(tree); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	*c = *next
	return nil
}

// fieldType resolves dotted key parts against the json tags of Config.
func fieldType(parts []string) (reflect.Type, bool) {
	t := reflect.TypeOf(Config{})
	for _, part := range parts {
		switch t.Kind() {
		case reflect.Struct:
			f, ok := fieldByTag(t, part)
			if !ok {
				return nil, false
			}
			t = f.Type
		case reflect.Map:
			if part == "" {
				return nil, false
			}
			t = t.Elem()
		default:
			return nil, false
		}
	}
	return t, true
}

func fieldByTag(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func fromTree(tree map[string]any) (*Config, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) tree() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
