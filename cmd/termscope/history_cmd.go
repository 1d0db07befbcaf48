package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/twistedxcom/termscope/internal/logging"
)

// handleHistory prints recorded usage snapshots, newest first.
func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "Rows to show (default from config)")
	jsonOut := fs.Bool("json", false, "Print JSON instead of a table")

	fs.Usage = func() {
		fmt.Println("Usage: termscope history [options]")
		fmt.Println()
		fmt.Println("Show recorded usage snapshots, newest first.")
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

	db, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: history database: %v\n", err)
		os.Exit(1)
	}
	if db == nil {
		fmt.Fprintln(os.Stderr, "Error: history is disabled in config")
		os.Exit(1)
	}
	defer db.Close()

	n := *limit
	if n <= 0 {
		n = cfg.History.GetLimit()
	}

	rows, err := db.RecentSnapshots(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rows)
		return
	}

	if len(rows) == 0 {
		fmt.Println("No snapshots recorded yet. Run 'termscope run' or 'termscope usage'.")
		return
	}

	fmt.Printf("%-20s %9s %9s %9s  %s\n", "TAKEN AT", "SESSION", "WEEK", "OPUS", "STATUS")
	for _, row := range rows {
		fmt.Println(formatSnapshotLine(row))
	}
}
