package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/commandecho/internal/config"
)

// testConfig writes a config using the offline provider with every path
// inside a temp directory.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	c := config.Default()
	c.LLM.Provider = "stub"
	c.Memory.MemoryDBPath = filepath.Join(dir, "memory.db")
	c.Memory.VectorDBPath = filepath.Join(dir, "vectors")
	c.System.SearchRoots = []string{dir}

	path := filepath.Join(dir, "config.json")
	if err := c.Save(path); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, cfgFile, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, jsonOutput, interactive = "", false, false, false

	var out bytes.Buffer
	RootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetIn(strings.NewReader(stdin))
	err := RootCmd.Execute()
	return out.String(), err
}

func TestCLI_Root(t *testing.T) {
	want := []string{"chat", "listen", "ask", "say", "memory", "pref", "config", "key"}
	for _, name := range want {
		found := false
		for _, cmd := range RootCmd.Commands() {
			if cmd.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected subcommand '%s'", name)
		}
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	out, err := execute(t, path, "", "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "Wrote default configuration") {
		t.Errorf("Unexpected output: %q", out)
	}

	if _, err := execute(t, path, "", "config", "init"); err == nil {
		t.Error("Expected error when the file exists")
	}
	if _, err := execute(t, path, "", "config", "init", "--force"); err != nil {
		t.Errorf("Expected --force to overwrite, got %v", err)
	}
	forceInit = false
}

func TestCLI_ConfigGetSetValidate(t *testing.T) {
	path := testConfig(t)

	if _, err := execute(t, path, "", "config", "set", "voice.wake_word", "jarvis"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, err := execute(t, path, "", "config", "get", "voice.wake_word")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "jarvis" {
		t.Errorf("Expected 'jarvis', got '%s'", strings.TrimSpace(out))
	}

	if _, err := execute(t, path, "", "config", "get", "voice.nope"); err == nil {
		t.Error("Expected error for unknown key")
	}

	if _, err := execute(t, path, "", "config", "set", "system.app_aliases.editor", "mousepad"); err != nil {
		t.Fatalf("config set of an alias failed: %v", err)
	}
	out, err = execute(t, path, "", "config", "get", "system.app_aliases")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != `{"editor":"mousepad"}` {
		t.Errorf("Unexpected aliases %s", out)
	}

	out, err = execute(t, path, "", "config", "validate")
	if err != nil {
		t.Fatalf("validate failed: %v (%s)", err, out)
	}
	if !strings.Contains(out, "is valid") {
		t.Errorf("Expected valid config, got %q", out)
	}

	if _, err := execute(t, path, "", "config", "set", "llm.top_p", "0"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if _, err := execute(t, path, "", "config", "validate"); err == nil {
		t.Error("Expected validate to fail for top_p 0")
	}
}

func TestCLI_MalformedConfigWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	configPath, verbose, jsonOutput = "", false, false

	var stdout, stderr bytes.Buffer
	RootCmd.SetArgs([]string{"--config", path, "config", "get", "voice.wake_word"})
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	if err := RootCmd.Execute(); err != nil {
		t.Fatalf("Expected defaults to load, got %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "echo" {
		t.Errorf("Expected default wake word, got '%s'", strings.TrimSpace(stdout.String()))
	}
	if !strings.Contains(stderr.String(), "using defaults") {
		t.Errorf("Expected a logged warning, got %q", stderr.String())
	}
}

func TestCLI_AskRememberRecall(t *testing.T) {
	path := testConfig(t)

	out, err := execute(t, path, "", "ask", "remember that my car is blue")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if strings.TrimSpace(out) != "Got it. I'll remember that my car is blue." {
		t.Errorf("Unexpected reply: %q", out)
	}

	out, err = execute(t, path, "", "memory", "recall", "my car")
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if strings.TrimSpace(out) != "blue" {
		t.Errorf("Expected 'blue', got '%s'", strings.TrimSpace(out))
	}

	out, _ = execute(t, path, "", "memory", "recall", "my boat")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("Expected '(not set)', got '%s'", strings.TrimSpace(out))
	}

	if _, err := execute(t, path, "", "memory", "remember", "wifi", "hunter", "two"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	out, _ = execute(t, path, "", "memory", "recall", "WIFI")
	if strings.TrimSpace(out) != "hunter two" {
		t.Errorf("Expected 'hunter two', got '%s'", strings.TrimSpace(out))
	}
}

func TestCLI_MemoryAddSearchStats(t *testing.T) {
	path := testConfig(t)

	out, err := execute(t, path, "", "memory", "add", "the spare key is under the plant pot")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.HasPrefix(out, "Stored memory ") {
		t.Errorf("Unexpected output: %q", out)
	}

	out, err = execute(t, path, "", "memory", "search", "spare key")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "plant pot") {
		t.Errorf("Expected the stored memory in results, got %q", out)
	}

	out, err = execute(t, path, "", "--json", "memory", "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("Expected JSON stats, got %q: %v", out, err)
	}
	if stats["memories"] != float64(1) {
		t.Errorf("Expected 1 memory, got %v", stats["memories"])
	}
	if stats["semantic_search"] != true {
		t.Errorf("Expected semantic search with the stub embedder, got %v", stats["semantic_search"])
	}
}

func TestCLI_Pref(t *testing.T) {
	path := testConfig(t)

	out, _ := execute(t, path, "", "pref", "get", "name")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("Expected '(not set)', got '%s'", strings.TrimSpace(out))
	}

	if _, err := execute(t, path, "", "pref", "set", "name", "Tony"); err != nil {
		t.Fatalf("pref set failed: %v", err)
	}
	out, _ = execute(t, path, "", "pref", "get", "name")
	if strings.TrimSpace(out) != "Tony" {
		t.Errorf("Expected 'Tony', got '%s'", strings.TrimSpace(out))
	}
}

func TestCLI_Chat(t *testing.T) {
	path := testConfig(t)
	execute(t, path, "", "pref", "set", "name", "Tony")

	out, err := execute(t, path, "what time is it\n\nbye\n", "chat")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "CommandEcho: Hello Tony") {
		t.Errorf("Expected personal greeting, got %q", out)
	}
	if !strings.Contains(out, "You: ") {
		t.Errorf("Expected input cue, got %q", out)
	}
	if !strings.Contains(out, "CommandEcho: The current time is ") {
		t.Errorf("Expected the time reply, got %q", out)
	}
	if !strings.HasSuffix(out, "CommandEcho: Goodbye! Have a great day!\n") {
		t.Errorf("Expected farewell last, got %q", out)
	}

	recent, err := execute(t, path, "", "memory", "recent")
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if !strings.Contains(recent, "what time is it") {
		t.Errorf("Expected the chat turn in history, got %q", recent)
	}
}

func TestCLI_Key(t *testing.T) {
	path := testConfig(t)

	out, err := execute(t, path, "", "key", "set", "openai", "sk-abcdefghijkl")
	if err != nil {
		t.Fatalf("key set failed: %v", err)
	}
	if strings.Contains(out, "abcdefghijkl") {
		t.Errorf("Key printed in clear: %q", out)
	}

	out, _ = execute(t, path, "", "key", "show", "openai")
	if strings.TrimSpace(out) != "sk-a...ijkl" {
		t.Errorf("Expected masked key, got '%s'", strings.TrimSpace(out))
	}

	execute(t, path, "", "key", "clear", "openai")
	out, _ = execute(t, path, "", "key", "show", "openai")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("Expected '(not set)', got '%s'", strings.TrimSpace(out))
	}
}
