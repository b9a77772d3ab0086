package guard

import (
	"testing"
)

func TestGuard_CheckApp(t *testing.T) {
	g := New(Policy{AllowedApps: []string{"firefox", "Code"}})

	t.Run("Allowed", func(t *testing.T) {
		if v := g.CheckApp("firefox"); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
		if v := g.CheckApp("  code "); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})

	t.Run("Blocked", func(t *testing.T) {
		v := g.CheckApp("rm")
		if v == nil {
			t.Fatal("Expected violation for rm")
		}
		if v.Rule != "allowed_apps" {
			t.Errorf("Expected rule 'allowed_apps', got '%s'", v.Rule)
		}
	})

	t.Run("Wildcard", func(t *testing.T) {
		if v := New(DefaultPolicy).CheckApp("anything"); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})
}

func TestGuard_CheckPath(t *testing.T) {
	g := New(DefaultPolicy)

	t.Run("Allowed", func(t *testing.T) {
		for _, p := range []string{"/home/tony/Documents/report.pdf", "notes/todo.txt"} {
			if v := g.CheckPath(p); v != nil {
				t.Errorf("Unexpected violation for %s: %v", p, v.Message)
			}
		}
	})

	t.Run("Denied", func(t *testing.T) {
		for _, p := range []string{"/home/tony/.ssh/id_rsa", "project/.env", "/root/.gnupg/pubring.kbx"} {
			if v := g.CheckPath(p); v == nil {
				t.Errorf("Expected violation for %s", p)
			}
		}
	})
}

func TestGuard_SearchLimit(t *testing.T) {
	if got := New(Policy{}).SearchLimit(); got != 5 {
		t.Errorf("Expected default limit 5, got %d", got)
	}
	if got := New(Policy{MaxSearchResults: 12}).SearchLimit(); got != 12 {
		t.Errorf("Expected 12, got %d", got)
	}
}
