// Package ptysession owns the hidden pseudo-terminal that the
// background telemetry session drives. It spawns the target CLI tool
// attached to the slave side and exposes the master side as a raw
// byte read/write surface.
package ptysession

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/twistedxcom/termscope/internal/logging"
)

var ptyLog = logging.ForComponent(logging.CompPTY)

// SpawnErrorKind classifies why a spawn attempt failed.
type SpawnErrorKind int

const (
	SpawnPTYAllocation SpawnErrorKind = iota
	SpawnExecutableNotFound
	SpawnSyscallFailed
)

func (k SpawnErrorKind) String() string {
	switch k {
	case SpawnPTYAllocation:
		return "pty allocation"
	case SpawnExecutableNotFound:
		return "executable not found"
	case SpawnSyscallFailed:
		return "spawn failed"
	}
	return "unknown"
}

// SpawnError is the typed failure returned by Open. No partial state
// survives a failed open.
type SpawnError struct {
	Kind SpawnErrorKind
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("ptysession: %s: %v", e.Kind, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Options configures a spawn.
type Options struct {
	// Command is the resolved program + args, usually from LocateTool.
	Command Command

	// Path is the PATH value for the child, usually from ResolveLoginPath.
	Path string

	// Rows/Cols size the PTY. Zero values get a sane default; the
	// hidden session never resizes.
	Rows, Cols uint16
}

// Session is one live child process attached to a PTY. At most one
// child is live per Session; it is valid between a successful Open
// and the observed exit or CloseMaster.
type Session struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pid  int

	closeOnce sync.Once
}

// Open allocates a PTY pair and spawns the child on the slave side
// with TERM/HOME/PATH set. The returned master descriptor is owned by
// the Session; use CloseMaster exactly once (extra calls are no-ops).
func Open(opts Options) (*Session, error) {
	if opts.Command.Program == "" {
		return nil, &SpawnError{Kind: SpawnExecutableNotFound, Err: fmt.Errorf("empty program")}
	}
	if opts.Rows == 0 {
		opts.Rows = 40
	}
	if opts.Cols == 0 {
		opts.Cols = 120
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}

	cmd := exec.Command(opts.Command.Program, opts.Command.Args...)
	cmd.Env = []string{
		"TERM=xterm-256color",
		"HOME=" + home,
		"PATH=" + opts.Path,
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		// pty.StartWithSize covers both openpty and fork/exec; split
		// the taxonomy on the error shape.
		if isExecNotFound(err) {
			return nil, &SpawnError{Kind: SpawnExecutableNotFound, Err: err}
		}
		return nil, &SpawnError{Kind: SpawnSyscallFailed, Err: err}
	}

	s := &Session{cmd: cmd, ptmx: ptmx, pid: cmd.Process.Pid}
	ptyLog.Info("spawned",
		slog.String("program", opts.Command.Program),
		slog.Int("pid", s.pid))
	return s, nil
}

// isExecNotFound reports whether err stems from a missing executable.
func isExecNotFound(err error) bool {
	for e := err; e != nil; {
		if pe, ok := e.(*os.PathError); ok && (pe.Err == syscall.ENOENT || os.IsNotExist(pe)) {
			return true
		}
		if ee, ok := e.(*exec.Error); ok {
			e = ee.Err
			continue
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return os.IsNotExist(err)
}

// Write sends raw bytes to the master descriptor.
func (s *Session) Write(p []byte) error {
	if _, err := s.ptmx.Write(p); err != nil {
		return fmt.Errorf("ptysession: write: %w", err)
	}
	return nil
}

// Read reads from the master descriptor. Blocks until output arrives
// or the master is closed; the async reader runs this on its own
// goroutine.
func (s *Session) Read(p []byte) (int, error) {
	return s.ptmx.Read(p)
}

// Pid returns the child's process id.
func (s *Session) Pid() int { return s.pid }

// Wait blocks until the child exits. Must be called exactly once (it
// reaps the child); the process supervisor owns that call.
func (s *Session) Wait() error {
	return s.cmd.Wait()
}

// Alive probes the child with signal 0. A child that exited but has
// not been reaped still counts as alive to the kernel; callers pair
// this with the supervisor's exit watch.
func (s *Session) Alive() bool {
	return syscall.Kill(s.pid, 0) == nil
}

// Terminate sends SIGTERM if the child is still alive. Errors are
// ignored: the child can exit between the probe and the signal.
func (s *Session) Terminate() {
	if s.Alive() {
		_ = syscall.Kill(s.pid, syscall.SIGTERM)
	}
}

// CloseMaster closes the master descriptor. Safe to call multiple
// times; the exit-watch teardown and explicit cleanup can both reach
// here and double-close must be a no-op, not an error.
func (s *Session) CloseMaster() {
	s.closeOnce.Do(func() {
		if err := s.ptmx.Close(); err != nil {
			ptyLog.Debug("master_close", slog.String("error", err.Error()))
		}
	})
}
