package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/twistedxcom/termscope/internal/config"
	"github.com/twistedxcom/termscope/internal/procreg"
	"github.com/twistedxcom/termscope/internal/ptysession"
	"github.com/twistedxcom/termscope/internal/statedb"
	"github.com/twistedxcom/termscope/internal/telemetry"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first positional, which makes
// "termscope history 10 --json" fail unexpectedly.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	// Build set of known boolean flags (don't need a value argument)
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")

			// --flag=value carries its value, nothing to move
			if strings.Contains(name, "=") {
				continue
			}

			// A non-bool flag consumes the next arg as its value
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// restartPolicyFromConfig maps the [restart] section onto a policy.
func restartPolicyFromConfig(rs config.RestartSettings) telemetry.RestartPolicy {
	if rs.GetPolicy() == "fixed" {
		return telemetry.FixedCooldown{Delay: rs.GetCooldown()}
	}
	return telemetry.ExponentialBackoff{
		Base:        rs.GetBaseDelay(),
		Max:         rs.GetMaxDelay(),
		MaxAttempts: rs.GetMaxAttempts(),
	}
}

// buildSession wires a background telemetry session from user config.
// The spawn honors the configured PTY size; the default spawn does not.
func buildSession(cfg *config.Config, reg *procreg.Registry, onUpdate func(telemetry.Update)) *telemetry.Session {
	tool := cfg.Tool.GetCommand()
	rows, cols := uint16(cfg.Tool.Rows), uint16(cfg.Tool.Cols)
	loginPath := sync.OnceValue(ptysession.ResolveLoginPath)

	return telemetry.NewSession(telemetry.Config{
		ToolName: tool,
		Scheduler: telemetry.SchedulerConfig{
			Warmup:        cfg.Telemetry.GetWarmup(),
			AttemptWindow: cfg.Telemetry.GetAttemptInterval(),
			MaxAttempts:   cfg.Telemetry.GetMaxAttempts(),
			PollInterval:  cfg.Telemetry.GetPollInterval(),
		},
		Policy: restartPolicyFromConfig(cfg.Restart),
		Settle: cfg.Telemetry.GetSettle(),
		Spawn: func() (telemetry.Child, error) {
			cmd, err := ptysession.LocateTool(tool, loginPath())
			if err != nil {
				return nil, err
			}
			return ptysession.Open(ptysession.Options{
				Command: cmd,
				Path:    loginPath(),
				Rows:    rows,
				Cols:    cols,
			})
		},
		Resolvable: func() bool {
			return ptysession.Resolvable(tool, loginPath())
		},
		Registry: reg,
		OnUpdate: onUpdate,
	})
}

// openHistory opens the snapshot database, or returns nil when history
// is disabled in config.
func openHistory(cfg *config.Config) (*statedb.StateDB, error) {
	if !cfg.History.GetEnabled() {
		return nil, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	db, err := statedb.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// formatSnapshotLine renders one history row for the table output.
func formatSnapshotLine(row statedb.SnapshotRow) string {
	return fmt.Sprintf("%-20s %8d%% %8d%% %8d%%  %s",
		row.TakenAt.Format("2006-01-02 15:04:05"),
		row.SessionPct, row.WeekAllPct, row.WeekOpusPct, row.Status)
}
