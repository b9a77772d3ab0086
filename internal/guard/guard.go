package guard

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy bounds what voice commands may touch on the host.
type Policy struct {
	AllowedApps      []string `json:"allowed_apps"`
	DeniedPaths      []string `json:"denied_paths"`
	MaxSearchResults int      `json:"max_search_results"`
}

// DefaultPolicy allows any application and hides credential directories
// from file search.
var DefaultPolicy = Policy{
	AllowedApps:      []string{"*"},
	DeniedPaths:      []string{"**/.ssh/**", "**/.gnupg/**", "**/.env"},
	MaxSearchResults: 5,
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	if p.MaxSearchResults <= 0 {
		p.MaxSearchResults = DefaultPolicy.MaxSearchResults
	}
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckApp verifies that an application may be launched or closed.
// Names compare case-insensitively; "*" allows everything.
func (g *Guard) CheckApp(name string) *Violation {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, allow := range g.policy.AllowedApps {
		if allow == "*" || strings.ToLower(allow) == name {
			return nil
		}
	}
	return &Violation{Rule: "allowed_apps", Message: "Application not allowed: " + name}
}

// CheckPath rejects paths matching any denied glob. Absolute paths are
// matched without their leading separator so "**/.ssh/**" covers them.
func (g *Guard) CheckPath(path string) *Violation {
	p := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
	if vol := filepath.VolumeName(path); vol != "" {
		p = strings.TrimPrefix(strings.TrimPrefix(p, filepath.ToSlash(vol)), "/")
	}

	for _, pattern := range g.policy.DeniedPaths {
		match, err := doublestar.Match(pattern, p)
		if err == nil && match {
			return &Violation{Rule: "denied_paths", Message: "Path not allowed: " + path}
		}
	}
	return nil
}

// SearchLimit caps the number of file search results.
func (g *Guard) SearchLimit() int {
	return g.policy.MaxSearchResults
}
