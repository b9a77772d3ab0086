package system

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/felixgeelhaar/commandecho/internal/guard"
)

// FileSearcher finds files by name under a fixed set of roots.
type FileSearcher struct {
	roots []string
	guard *guard.Guard
}

// NewFileSearcher expands a leading "~" in each root.
func NewFileSearcher(roots []string, g *guard.Guard) *FileSearcher {
	if g == nil {
		g = guard.New(guard.DefaultPolicy)
	}
	expanded := make([]string, 0, len(roots))
	for _, r := range roots {
		expanded = append(expanded, ExpandHome(r))
	}
	return &FileSearcher{roots: expanded, guard: g}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Find returns up to the guard's search limit of file paths whose base name
// contains term, case-insensitively. Denied paths are skipped.
func (s *FileSearcher) Find(ctx context.Context, term string) ([]string, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}
	pattern := "**/*" + escapeGlob(term) + "*"
	limit := s.guard.SearchLimit()

	var found []string
	for _, root := range s.roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		err := fs.WalkDir(os.DirFS(root), ".", func(rel string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable directories are skipped
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			full := filepath.Join(root, filepath.FromSlash(rel))
			if s.guard.CheckPath(full) != nil {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := doublestar.Match(pattern, strings.ToLower(rel)); ok {
				found = append(found, full)
				if len(found) >= limit {
					return fs.SkipAll
				}
			}
			return nil
		})
		if err != nil {
			return found, err
		}
		if len(found) >= limit {
			break
		}
	}
	return found, nil
}

// Search formats the result of Find as a spoken answer.
func (s *FileSearcher) Search(ctx context.Context, term string) string {
	term = strings.TrimSpace(term)
	found, err := s.Find(ctx, term)
	if err != nil && len(found) == 0 {
		return fmt.Sprintf("Error searching for files: %v", err)
	}
	if len(found) == 0 {
		return fmt.Sprintf("No files found matching '%s'", term)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d files matching '%s':", len(found), term)
	for i, f := range found {
		fmt.Fprintf(&b, "\n%d. %s", i+1, f)
	}
	return b.String()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
