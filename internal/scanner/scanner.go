// Package scanner passively observes the byte stream of the user's
// visible terminal session to detect when the target program starts
// and to recover its working directory. Observation only: the bytes
// are never withheld from whatever renders them.
package scanner

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/twistedxcom/termscope/internal/ansi"
	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/textbuf"
)

var scanLog = logging.ForComponent(logging.CompScanner)

// Sentinel markers for the explicit directory query. Exact-match,
// case-sensitive; chosen to never collide with real output.
const (
	StartMarker = "___PWD_START___"
	EndMarker   = "___PWD_END___"
)

const (
	// scanCap bounds the heuristic scan buffer.
	scanCap = 2000
	// tailWindow is how much of the stripped buffer the heuristic
	// inspects; a prompt line is always shorter than this.
	tailWindow = 100
	// captureCap bounds the marker capture window. Exceeding it
	// aborts the capture entirely.
	captureCap = 8192
)

// promptRe matches the trailing shell-prompt shape "@host path %" or
// "@host path $". The path segment immediately before the prompt
// symbol is the working directory.
var promptRe = regexp.MustCompile(`@[\w.-]+\s+(\S+)\s+[%$]`)

// Config wires a Scanner.
type Config struct {
	// Out receives the injected marker query (the visible session's
	// PTY master).
	Out io.Writer

	// Invocation is the target program's command name as the user
	// types it, e.g. "claude".
	Invocation string

	// Home is the user's home directory, for ~ expansion.
	Home string

	// OnWorkingDirectory is invoked with the path recovered by the
	// marker protocol.
	OnWorkingDirectory func(path string)

	// OnProgramStarted is invoked with the working directory when the
	// heuristic spots the target program being launched.
	OnProgramStarted func(path string)
}

// Scanner runs both detection strategies over the same inbound chunks.
// Not safe for concurrent use: all calls must come from the single
// goroutine that delivers terminal output.
type Scanner struct {
	cfg     Config
	scan    *textbuf.Buffer
	capture *textbuf.Capture
}

// New creates a scanner. Both buffers start empty and inactive.
func New(cfg Config) *Scanner {
	return &Scanner{
		cfg:     cfg,
		scan:    textbuf.NewBuffer(scanCap, 0, nil),
		capture: textbuf.NewCapture(captureCap),
	}
}

// QueryWorkingDirectory starts a marker capture and injects the query
// command. Only one capture runs at a time; a query while a capture is
// in flight restarts it.
func (s *Scanner) QueryWorkingDirectory() error {
	s.capture.Activate()
	cmd := fmt.Sprintf("echo %s; pwd; echo %s\r", StartMarker, EndMarker)
	if _, err := s.cfg.Out.Write([]byte(cmd)); err != nil {
		s.capture.Abort()
		return fmt.Errorf("scanner: marker query: %w", err)
	}
	return nil
}

// CaptureActive reports whether a marker capture is in flight.
func (s *Scanner) CaptureActive() bool {
	return s.capture.Active()
}

// Observe consumes one chunk of the visible session's output. Both
// strategies see every chunk.
func (s *Scanner) Observe(chunk []byte) {
	text := string(chunk)
	s.observeMarkers(text)
	s.observePrompt(text)
}

// observeMarkers feeds the capture window and extracts the directory
// once both sentinel lines have arrived. Overflow silently aborts the
// capture; the caller re-queries if it still cares.
func (s *Scanner) observeMarkers(text string) {
	if !s.capture.Active() {
		return
	}
	if s.capture.Append(text) {
		scanLog.Debug("marker_capture_overflow")
		return
	}

	between, ok := betweenMarkers(s.capture.String())
	if !ok {
		return
	}
	s.capture.Finish()

	if dir, ok := firstAbsoluteLine(between); ok {
		scanLog.Info("working_directory_captured", slog.String("dir", dir))
		if s.cfg.OnWorkingDirectory != nil {
			s.cfg.OnWorkingDirectory(dir)
		}
	}
}

// betweenMarkers returns the text strictly between the start and end
// sentinels. Markers only count when they sit alone at the end of a
// line: the echoed query command contains both sentinels on one line
// and must not satisfy the capture.
func betweenMarkers(text string) (string, bool) {
	si := markerLineIndex(text, StartMarker, 0)
	if si < 0 {
		return "", false
	}
	from := si + len(StartMarker)
	ei := markerLineIndex(text, EndMarker, from)
	if ei < 0 {
		return "", false
	}
	return text[from:ei], true
}

// markerLineIndex finds the first occurrence of marker at or after
// from that is immediately followed by a line break.
func markerLineIndex(text, marker string, from int) int {
	for i := from; i < len(text); {
		j := strings.Index(text[i:], marker)
		if j < 0 {
			return -1
		}
		idx := i + j
		rest := text[idx+len(marker):]
		rest = strings.TrimPrefix(rest, "\r")
		if strings.HasPrefix(rest, "\n") {
			return idx
		}
		i = idx + len(marker)
	}
	return -1
}

// firstAbsoluteLine returns the first non-empty line beginning with /
// after ANSI stripping.
func firstAbsoluteLine(text string) (string, bool) {
	for _, line := range strings.Split(ansi.Strip(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			return line, true
		}
	}
	return "", false
}

// observePrompt runs the always-on heuristic: when a chunk completes a
// line, look at the stripped tail of the scan buffer for the target
// program's invocation next to a shell prompt, and recover the prompt's
// path segment as the working directory.
func (s *Scanner) observePrompt(text string) {
	s.scan.Append(text)
	if !strings.Contains(text, "\n") {
		return
	}

	tail := lastChars(ansi.Strip(s.scan.String()), tailWindow)
	if !strings.Contains(tail, s.cfg.Invocation) {
		return
	}

	matches := promptRe.FindAllStringSubmatch(tail, -1)
	if len(matches) == 0 {
		return
	}
	dir := s.expandPath(matches[len(matches)-1][1])

	scanLog.Info("program_started", slog.String("dir", dir))
	if s.cfg.OnProgramStarted != nil {
		s.cfg.OnProgramStarted(dir)
	}
	// Clear so the same prompt line cannot re-trigger.
	s.scan.Reset()
}

// expandPath expands a leading ~ and falls back to / for anything
// still relative; a wrong-but-absolute directory beats a relative one
// that no consumer can use.
func (s *Scanner) expandPath(p string) string {
	if p == "~" {
		return s.cfg.Home
	}
	if strings.HasPrefix(p, "~/") {
		return s.cfg.Home + p[1:]
	}
	if !strings.HasPrefix(p, "/") {
		return "/"
	}
	return p
}

// lastChars returns the trailing n characters of s.
func lastChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
