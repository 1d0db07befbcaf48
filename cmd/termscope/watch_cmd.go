package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/procreg"
	"github.com/twistedxcom/termscope/internal/ui"
)

// handleWatch opens the live usage panel over a hidden background session.
func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	theme := fs.String("theme", "dark", "Color theme: dark or light")

	fs.Usage = func() {
		fmt.Println("Usage: termscope watch [options]")
		fmt.Println()
		fmt.Println("Show a live usage panel. q to quit.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	ui.InitTheme(*theme)

	// The panel records history too, so --cached and the history
	// command stay useful after a watch session.
	db, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: history database: %v\n", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	reg := procreg.New()
	sess := buildSession(cfg, reg, recordUpdates(db))
	if err := sess.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		sess.Close()
		reg.Shutdown()
	}()

	p := tea.NewProgram(
		ui.NewWatchModel(sess.Updates()),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
