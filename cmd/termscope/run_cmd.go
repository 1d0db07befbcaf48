package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/twistedxcom/termscope/internal/config"
	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/procreg"
	"github.com/twistedxcom/termscope/internal/statedb"
	"github.com/twistedxcom/termscope/internal/telemetry"
)

// handleRun starts the headless monitor: a hidden tool session scraped
// on the configured schedule, snapshots recorded to the local database.
func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	pruneDays := fs.Int("prune-days", 90, "Delete recorded snapshots older than this many days; 0 keeps everything")

	fs.Usage = func() {
		fmt.Println("Usage: termscope run [options]")
		fmt.Println()
		fmt.Println("Run the background monitor until interrupted.")
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
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", fs.Args())
		os.Exit(1)
	}

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	log := logging.ForComponent(logging.CompTelemetry)

	db, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: history database: %v\n", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		if *pruneDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -*pruneDays)
			if err := db.PruneBefore(cutoff); err != nil {
				log.Warn("history_prune_failed", slog.String("error", err.Error()))
			}
		}
	}

	reg := procreg.New()

	var mu sync.Mutex
	sess := buildSession(cfg, reg, recordUpdates(db))

	if err := sess.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Monitoring %q; polling every %s. Ctrl+C to stop.\n",
		cfg.Tool.GetCommand(), cfg.Telemetry.GetPollInterval())

	// Hot-reload: scheduler and restart settings are wired in at session
	// construction, so a change to them replaces the session. A touch
	// that changes nothing relevant just refreshes the numbers.
	var watcher *config.Watcher
	if path, err := config.Path(); err == nil {
		watcher, err = config.NewWatcher(path, func(newCfg *config.Config) {
			mu.Lock()
			defer mu.Unlock()
			if sess == nil {
				return
			}
			if !monitoringChanged(cfg, newCfg) {
				log.Info("config_reloaded_triggering_fetch")
				sess.TriggerNow()
				return
			}
			log.Info("config_reloaded_restarting_session")
			sess.Close()
			cfg = newCfg
			sess = buildSession(cfg, reg, recordUpdates(db))
			if err := sess.Start(); err != nil {
				log.Error("session_restart_failed", slog.String("error", err.Error()))
				sess = nil
			}
		})
		if err == nil {
			if err := watcher.Start(); err != nil {
				log.Warn("config_watch_failed", slog.String("error", err.Error()))
				watcher = nil
			}
		} else {
			watcher = nil
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("Shutting down.")
	if watcher != nil {
		_ = watcher.Stop()
	}
	mu.Lock()
	if sess != nil {
		sess.Close()
	}
	mu.Unlock()
	reg.Shutdown()
}

// monitoringChanged reports whether the fields baked into a running
// session differ between two configs.
func monitoringChanged(prev, next *config.Config) bool {
	return prev.Tool != next.Tool ||
		prev.Telemetry != next.Telemetry ||
		prev.Restart != next.Restart
}

// recordUpdates persists terminal fetch outcomes. Intermediate states
// (fetching) are not history.
func recordUpdates(db *statedb.StateDB) func(telemetry.Update) {
	if db == nil {
		return nil
	}
	log := logging.ForComponent(logging.CompStorage)
	return func(up telemetry.Update) {
		switch up.Status {
		case telemetry.StatusSuccess, telemetry.StatusFailed:
		default:
			return
		}
		err := db.InsertSnapshot(statedb.SnapshotRow{
			TakenAt:     up.At,
			SessionPct:  up.Snapshot.SessionUsedPct,
			WeekAllPct:  up.Snapshot.WeekAllModelsPct,
			WeekOpusPct: up.Snapshot.WeekOpusPct,
			Status:      up.Status.String(),
		})
		if err != nil {
			log.Warn("snapshot_record_failed", slog.String("error", err.Error()))
		}
	}
}
