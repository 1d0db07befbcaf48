package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/procreg"
	"github.com/twistedxcom/termscope/internal/telemetry"
	"github.com/twistedxcom/termscope/internal/usage"
)

// usageOutput is the --json shape.
type usageOutput struct {
	SessionPct  int       `json:"session_pct"`
	WeekAllPct  int       `json:"week_all_models_pct"`
	WeekOpusPct int       `json:"week_opus_pct"`
	TakenAt     time.Time `json:"taken_at"`
	Cached      bool      `json:"cached,omitempty"`
}

// handleUsage fetches usage once and prints it.
func handleUsage(args []string) {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Print JSON instead of text")
	cached := fs.Bool("cached", false, "Print the last recorded snapshot without spawning the tool")
	timeout := fs.Duration("timeout", 90*time.Second, "Give up after this long")

	fs.Usage = func() {
		fmt.Println("Usage: termscope usage [options]")
		fmt.Println()
		fmt.Println("Spawn the tool hidden, scrape its usage panel once, print the result.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  termscope usage")
		fmt.Println("  termscope usage --json")
		fmt.Println("  termscope usage --cached")
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

	if *cached {
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

		row, ok, err := db.LatestSnapshot()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "No snapshots recorded yet. Run 'termscope run' or 'termscope usage'.")
			os.Exit(1)
		}
		snap := usage.Snapshot{
			SessionUsedPct:   row.SessionPct,
			WeekAllModelsPct: row.WeekAllPct,
			WeekOpusPct:      row.WeekOpusPct,
		}
		printUsage(snap, row.TakenAt, true, *jsonOut)
		return
	}

	reg := procreg.New()
	sess := buildSession(cfg, reg, nil)
	if err := sess.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	up, err := waitForTerminal(sess.Updates(), *timeout)

	// Teardown runs on every path, including failure: exiting with the
	// child still attached would leave it to die by SIGHUP instead of
	// the ordered quit/SIGTERM sequence.
	sess.Close()
	reg.Shutdown()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printUsage(up.Snapshot, up.At, false, *jsonOut)
}

// waitForTerminal consumes updates until a terminal fetch outcome
// arrives. A failed fetch and a timeout are both errors; intermediate
// states keep waiting.
func waitForTerminal(updates <-chan telemetry.Update, timeout time.Duration) (telemetry.Update, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case up := <-updates:
			switch up.Status {
			case telemetry.StatusSuccess:
				return up, nil
			case telemetry.StatusFailed:
				return up, fmt.Errorf("usage panel did not appear; is the tool logged in?")
			}
		case <-deadline.C:
			return telemetry.Update{}, fmt.Errorf("timed out after %s", timeout)
		}
	}
}

func printUsage(snap usage.Snapshot, at time.Time, cached, jsonOut bool) {
	if jsonOut {
		out := usageOutput{
			SessionPct:  snap.SessionUsedPct,
			WeekAllPct:  snap.WeekAllModelsPct,
			WeekOpusPct: snap.WeekOpusPct,
			TakenAt:     at,
			Cached:      cached,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Printf("Session:           %3d%% used\n", snap.SessionUsedPct)
	fmt.Printf("Week (all models): %3d%% used\n", snap.WeekAllModelsPct)
	fmt.Printf("Week (Opus):       %3d%% used\n", snap.WeekOpusPct)
	if cached {
		fmt.Printf("As of:             %s (cached)\n", at.Format("2006-01-02 15:04:05"))
	}
}
