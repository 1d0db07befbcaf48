package ptysession

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/twistedxcom/termscope/internal/platform"
)

// probeTimeout bounds every login-shell probe. A shell with a slow
// rc file must not wedge startup.
const probeTimeout = 5 * time.Second

// fallbackPath is used when the login-shell PATH probe times out or
// fails.
const fallbackPath = "/opt/homebrew/bin:/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

// Command is a resolved program invocation: the executable to spawn
// and its arguments. When the tool is a script, Program is the
// language runtime and Args carries the script path.
type Command struct {
	Program string
	Args    []string
}

// ResolveLoginPath asks the user's login shell for its PATH so the
// child sees the same tool installs the user does. Falls back to a
// minimal default on timeout or error.
func ResolveLoginPath() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, shell, "-l", "-c", "echo $PATH").Output()
	if err != nil {
		ptyLog.Warn("login_path_probe_failed", slog.String("error", err.Error()))
		return fallbackPath
	}

	path := strings.TrimSpace(string(out))
	if path == "" {
		return fallbackPath
	}
	// Shells that print banners can emit multiple lines; PATH is the last.
	if i := strings.LastIndexByte(path, '\n'); i >= 0 {
		path = strings.TrimSpace(path[i+1:])
	}
	return path
}

// LocateTool resolves the absolute path of the named CLI tool by
// probing common install locations and then the login shell's lookup.
// If the tool is a script with a runtime shebang, the runtime is
// resolved against searchPath and becomes the spawned program.
func LocateTool(name, searchPath string) (Command, error) {
	toolPath := probeKnownLocations(name)
	if toolPath == "" {
		toolPath = lookInPath(name, searchPath)
	}
	if toolPath == "" {
		toolPath = askLoginShell(name)
	}
	if toolPath == "" {
		return Command{}, fmt.Errorf("ptysession: locate %s: not found", name)
	}

	if runtime := scriptRuntime(toolPath); runtime != "" {
		runtimePath := lookInPath(runtime, searchPath)
		if runtimePath == "" {
			return Command{}, fmt.Errorf("ptysession: locate %s: runtime %s not found", name, runtime)
		}
		return Command{Program: runtimePath, Args: []string{toolPath}}, nil
	}

	return Command{Program: toolPath}, nil
}

// Resolvable reports whether the tool can still be located. The
// supervisor checks this before scheduling a restart.
func Resolvable(name, searchPath string) bool {
	_, err := LocateTool(name, searchPath)
	return err == nil
}

// probeKnownLocations checks the places the tool's own installer puts
// it, which a non-login PATH often misses.
func probeKnownLocations(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidates := []string{
		filepath.Join(home, "."+name, "local", name),
		filepath.Join(home, ".local", "bin", name),
	}
	switch platform.Detect() {
	case platform.MacOS:
		candidates = append(candidates,
			"/opt/homebrew/bin/"+name,
			"/usr/local/bin/"+name,
		)
	default:
		candidates = append(candidates,
			"/usr/local/bin/"+name,
			filepath.Join(home, ".npm-global", "bin", name),
		)
	}
	for _, c := range candidates {
		if isExecutable(c) {
			return c
		}
	}
	return ""
}

// lookInPath scans a colon-separated search path for an executable.
// exec.LookPath consults the process environment, which is not the
// resolved login PATH, so the scan is explicit.
func lookInPath(name, searchPath string) string {
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate
		}
	}
	return ""
}

// askLoginShell runs `command -v` in a login shell, time-boxed.
func askLoginShell(name string) string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, shell, "-l", "-c", "command -v "+name).Output()
	if err != nil {
		return ""
	}
	path := strings.TrimSpace(string(out))
	if i := strings.LastIndexByte(path, '\n'); i >= 0 {
		path = strings.TrimSpace(path[i+1:])
	}
	if !isExecutable(path) {
		return ""
	}
	return path
}

// scriptRuntime returns the interpreter name from a shebang line, or
// "" for native binaries. Claude Code installs as a node script, so
// the common shapes are "#!/usr/bin/env node" and a direct node path.
func scriptRuntime(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#!") {
		return ""
	}

	fields := strings.Fields(line[2:])
	if len(fields) == 0 {
		return ""
	}
	if filepath.Base(fields[0]) == "env" && len(fields) > 1 {
		return fields[1]
	}
	return filepath.Base(fields[0])
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
