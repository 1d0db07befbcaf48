package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/twistedxcom/termscope/internal/config"
	"github.com/twistedxcom/termscope/internal/logging"
)

const Version = "0.3.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// Allow user override via environment variable
	// TERMSCOPE_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("TERMSCOPE_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	// Explicit TrueColor support
	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Check TERM for capability hints
	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) || term == t {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	// Common terminal emulators advertise via env vars
	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" || // iTerm2
		os.Getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		os.Getenv("KONSOLE_VERSION") != "" { // Konsole
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Fallback: ANSI256 works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// initLogging sets up structured logging (JSONL format with rotation)
// from config defaults plus user overrides. When TERMSCOPE_DEBUG is set,
// everything down to debug level lands in <dir>/debug.log; when not set,
// records below the configured level are discarded.
func initLogging(cfg *config.Config) {
	debugMode := os.Getenv("TERMSCOPE_DEBUG") != ""

	baseDir, err := config.Dir()
	if err != nil {
		return
	}

	logCfg := logging.Config{
		Debug:             debugMode,
		LogDir:            baseDir,
		Level:             "info",
		Format:            "json",
		MaxSizeMB:         10,
		MaxBackups:        5,
		MaxAgeDays:        10,
		Compress:          true,
		RingSize:          1024 * 1024,
		AggregateInterval: 30,
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	ls := cfg.Logs
	if ls.Level != "" {
		logCfg.Level = ls.Level
	}
	if ls.Format != "" {
		logCfg.Format = ls.Format
	}
	if ls.MaxSizeMB > 0 {
		logCfg.MaxSizeMB = ls.MaxSizeMB
	}
	if ls.Backups > 0 {
		logCfg.MaxBackups = ls.Backups
	}
	if ls.RetentionDays > 0 {
		logCfg.MaxAgeDays = ls.RetentionDays
	}
	logCfg.Compress = ls.GetCompress()
	if ls.RingBufferMB > 0 {
		logCfg.RingSize = ls.RingBufferMB * 1024 * 1024
	}
	if ls.AggregateIntervalSecs > 0 {
		logCfg.AggregateInterval = ls.AggregateIntervalSecs
	}
	if ls.PprofEnabled {
		logCfg.PprofEnabled = true
	}

	logging.Init(logCfg)

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRing(dumpPath); err != nil {
				logging.Logger().Error("crash_dump_failed",
					slog.String("error", err.Error()))
			} else {
				logging.Logger().Info("crash_dump_written",
					slog.String("path", dumpPath))
			}
		}
	}()
}

// loadConfig reads the user config and warns about a malformed file
// without refusing to start.
func loadConfig() *config.Config {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg
}

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("termscope v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "run":
			handleRun(args[1:])
			return
		case "usage":
			handleUsage(args[1:])
			return
		case "watch":
			handleWatch(args[1:])
			return
		case "observe":
			handleObserve(args[1:])
			return
		case "history":
			handleHistory(args[1:])
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printHelp()
			os.Exit(1)
		}
	}

	// Bare invocation opens the live panel.
	handleWatch(nil)
}

func printHelp() {
	fmt.Println("termscope - Claude Code usage telemetry from the terminal")
	fmt.Println()
	fmt.Println("Usage: termscope [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  watch     Live usage panel fed by a hidden background session (default)")
	fmt.Println("  run       Headless monitor: scrape usage on a schedule, record history")
	fmt.Println("  usage     One-shot usage fetch, text or --json")
	fmt.Println("  observe   Wrap a shell and detect the tool starting in it")
	fmt.Println("  history   Show recorded usage snapshots")
	fmt.Println("  version   Print version")
	fmt.Println("  help      Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TERMSCOPE_DIR    Config and state directory (default ~/.termscope)")
	fmt.Println("  TERMSCOPE_DEBUG  Write debug logs to <dir>/debug.log")
	fmt.Println("  TERMSCOPE_COLOR  Force color profile: truecolor, 256, 16, none")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  termscope")
	fmt.Println("  termscope usage --json")
	fmt.Println("  termscope run")
	fmt.Println("  termscope observe")
	fmt.Println("  termscope history --limit 10")
}
