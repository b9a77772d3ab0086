package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	goruntime "runtime"
	"strings"

	"github.com/felixgeelhaar/commandecho/internal/guard"
)

// defaultAliases maps spoken names to executables per platform.
var defaultAliases = map[string]map[string]string{
	"notepad":            {"windows": "notepad.exe", "linux": "gedit", "darwin": "TextEdit"},
	"code":               {"windows": "code", "linux": "code", "darwin": "Visual Studio Code"},
	"vs code":            {"windows": "code", "linux": "code", "darwin": "Visual Studio Code"},
	"visual studio code": {"windows": "code", "linux": "code", "darwin": "Visual Studio Code"},
	"chrome":             {"windows": "chrome", "linux": "google-chrome", "darwin": "Google Chrome"},
	"google chrome":      {"windows": "chrome", "linux": "google-chrome", "darwin": "Google Chrome"},
	"firefox":            {"windows": "firefox", "linux": "firefox", "darwin": "Firefox"},
	"calculator":         {"windows": "calc", "linux": "gnome-calculator", "darwin": "Calculator"},
	"terminal":           {"windows": "cmd", "linux": "gnome-terminal", "darwin": "Terminal"},
	"files":              {"windows": "explorer", "linux": "nautilus", "darwin": "Finder"},
	"vlc":                {"windows": "vlc", "linux": "vlc", "darwin": "VLC"},
	"spotify":            {"windows": "spotify", "linux": "spotify", "darwin": "Spotify"},
}

// Launcher opens and closes applications by spoken name.
type Launcher struct {
	runner  Runner
	procs   ProcessTable
	guard   *guard.Guard
	goos    string
	aliases map[string]string
}

// NewLauncher resolves names through the built-in table for this platform,
// then through aliases, which take precedence. A nil ProcessTable uses the
// local machine.
func NewLauncher(r Runner, p ProcessTable, g *guard.Guard, aliases map[string]string) *Launcher {
	if r == nil {
		r = ExecRunner{}
	}
	if p == nil {
		p = LocalHost{}
	}
	if g == nil {
		g = guard.New(guard.DefaultPolicy)
	}
	l := &Launcher{runner: r, procs: p, guard: g, goos: goruntime.GOOS}
	l.aliases = l.buildAliases(aliases)
	return l
}

func (l *Launcher) buildAliases(extra map[string]string) map[string]string {
	out := make(map[string]string, len(defaultAliases)+len(extra))
	for name, perOS := range defaultAliases {
		if exe, ok := perOS[l.goos]; ok {
			out[name] = exe
		}
	}
	for name, exe := range extra {
		out[strings.ToLower(strings.TrimSpace(name))] = exe
	}
	return out
}

// Resolve returns the executable for a spoken application name.
func (l *Launcher) Resolve(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if exe, ok := l.aliases[key]; ok {
		return exe
	}
	return key
}

func (l *Launcher) Launch(_ context.Context, name string) string {
	name = strings.TrimSpace(name)
	exe := l.Resolve(name)
	if v := l.guard.CheckApp(exe); v != nil {
		return fmt.Sprintf("I'm not allowed to open %s.", name)
	}

	var err error
	switch l.goos {
	case "darwin":
		err = l.runner.Start("open", "-a", exe)
	case "windows":
		err = l.runner.Start("cmd", "/c", "start", "", exe)
	default:
		err = l.runner.Start(exe)
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Sprintf("Application '%s' not found. Please check if it's installed.", name)
		}
		return fmt.Sprintf("Failed to launch %s: %v", name, err)
	}
	return "Launched " + name
}

// Close terminates every process whose name or executable is exactly the
// resolved application. The name is never treated as a pattern.
func (l *Launcher) Close(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	exe := l.Resolve(name)
	if v := l.guard.CheckApp(exe); v != nil {
		return fmt.Sprintf("I'm not allowed to close %s.", name)
	}

	procs, err := l.procs.Processes(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to close %s: %v", name, err)
	}
	var matched, closed int
	for _, p := range procs {
		if !matchesProcess(p, exe) {
			continue
		}
		matched++
		if err := l.procs.Terminate(ctx, p.PID); err == nil {
			closed++
		}
	}

	switch {
	case matched == 0:
		return fmt.Sprintf("No running processes found for '%s'", name)
	case closed == 0:
		return fmt.Sprintf("Could not close %s - access denied or process not found", name)
	case closed == 1:
		return "Closed " + name
	default:
		return fmt.Sprintf("Closed %d instances of %s", closed, name)
	}
}
