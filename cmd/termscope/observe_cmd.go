package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/scanner"
	"github.com/twistedxcom/termscope/internal/statedb"
)

// handleObserve wraps an interactive shell in a PTY and watches its
// output for the monitored tool being launched. The shell behaves
// normally; detection is passive except for one marker query that
// recovers the working directory.
func handleObserve(args []string) {
	fs := flag.NewFlagSet("observe", flag.ContinueOnError)
	shell := fs.String("shell", "", "Shell to run (default $SHELL)")
	queryDelay := fs.Duration("query-delay", 2*time.Second, "Wait before the working-directory query; 0 disables it")

	fs.Usage = func() {
		fmt.Println("Usage: termscope observe [options]")
		fmt.Println()
		fmt.Println("Run a shell and detect the monitored tool starting in it.")
		fmt.Println("Detections are logged and recorded; exit the shell to stop.")
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

	log := logging.ForComponent(logging.CompScanner)

	db, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: history database: %v\n", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	shellPath := *shell
	if shellPath == "" {
		shellPath = os.Getenv("SHELL")
	}
	if shellPath == "" {
		shellPath = "/bin/sh"
	}

	cmd := exec.Command(shellPath)
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: start shell: %v\n", err)
		os.Exit(1)
	}
	defer ptmx.Close()

	// Track terminal resizes so the wrapped shell renders correctly.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	winch <- syscall.SIGWINCH
	defer func() { signal.Stop(winch); close(winch) }()

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: raw mode: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

	home, _ := os.UserHomeDir()

	// Detection results, written only by the output pump goroutine and
	// read after it finishes.
	var workingDir string
	var launches []string

	sc := scanner.New(scanner.Config{
		Out:        ptmx,
		Invocation: cfg.GetInvocation(),
		Home:       home,
		OnWorkingDirectory: func(path string) {
			workingDir = path
			log.Info("working_directory", slog.String("path", path))
			recordMeta(db, "last_observed_cwd", path)
		},
		OnProgramStarted: func(path string) {
			launches = append(launches, path)
			log.Info("program_started", slog.String("path", path))
			recordMeta(db, "last_program_start", path)
			recordMeta(db, "last_program_start_at", time.Now().Format(time.RFC3339))
		},
	})

	if *queryDelay > 0 {
		time.AfterFunc(*queryDelay, func() {
			if err := sc.QueryWorkingDirectory(); err != nil {
				log.Warn("pwd_query_failed", slog.String("error", err.Error()))
			}
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		// Shell exit closes the master side and ends this pump.
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				_, _ = os.Stdout.Write(buf[:n])
				sc.Observe(buf[:n])
			}
			if err != nil {
				return nil
			}
		}
	})
	go func() {
		// Stdin pump is abandoned on shell exit; no clean way to
		// interrupt a blocked terminal read.
		_, _ = io.Copy(ptmx, os.Stdin)
	}()

	_ = g.Wait()
	_ = cmd.Wait()
	_ = term.Restore(int(os.Stdin.Fd()), oldState)

	if workingDir != "" {
		fmt.Printf("Working directory: %s\n", workingDir)
	}
	for _, path := range launches {
		fmt.Printf("Detected %s launch in %s\n", cfg.GetInvocation(), path)
	}
}

func recordMeta(db *statedb.StateDB, key, value string) {
	if db == nil {
		return
	}
	if err := db.SetMeta(key, value); err != nil {
		logging.ForComponent(logging.CompStorage).Warn("meta_record_failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}
