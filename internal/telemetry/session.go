package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/twistedxcom/termscope/internal/procreg"
	"github.com/twistedxcom/termscope/internal/ptysession"
	"github.com/twistedxcom/termscope/internal/textbuf"
	"github.com/twistedxcom/termscope/internal/usage"
)

// Child is the live PTY child as the session sees it. Satisfied by
// *ptysession.Session; tests substitute a pipe-backed fake.
type Child interface {
	Pid() int
	Write(p []byte) error
	Read(p []byte) (int, error)
	Wait() error
	Alive() bool
	Terminate()
	CloseMaster()
}

// SpawnFunc produces a fresh child. Called once at startup and once
// per restart.
type SpawnFunc func() (Child, error)

// Update is one observable state change: the latest snapshot plus the
// fetch status that produced it.
type Update struct {
	Snapshot usage.Snapshot
	Status   FetchStatus
	At       time.Time
}

// Config wires a background session.
type Config struct {
	// ToolName is the CLI to run hidden, e.g. "claude".
	ToolName string

	Scheduler SchedulerConfig

	// Policy decides restart timing; nil gets DefaultBackoff. The
	// Limiter is a storm guard on top of the policy; nil gets a
	// sane default.
	Policy  RestartPolicy
	Limiter *rate.Limiter

	// BufferCap / Settle tune the scrape buffer; zero means defaults.
	BufferCap int
	Settle    time.Duration

	// Spawn and Resolvable default to the real PTY stack for ToolName.
	Spawn      SpawnFunc
	Resolvable func() bool

	// Registry tracks the child pid for crash-safe shutdown. Optional.
	Registry *procreg.Registry

	// OnUpdate observes every published update inline. Must not call
	// back into the session. Optional.
	OnUpdate func(Update)
}

// Session owns one hidden child and everything attached to it: the
// reader, the scrape buffer, the query scheduler, and the exit watch
// that restarts the child when it dies.
type Session struct {
	cfg     Config
	limiter *rate.Limiter

	mu           sync.Mutex
	child        Child
	buf          *textbuf.Buffer
	sched        *Scheduler
	inject       Injector
	gen          int // spawn generation; stale exit watches compare against it
	failures     int // consecutive restart attempts
	spawnedAt    time.Time
	restartTimer *time.Timer
	closed       bool

	// Published state is guarded separately so scheduler callbacks
	// never contend with the lifecycle lock.
	pubMu    sync.Mutex
	snapshot usage.Snapshot
	status   FetchStatus
	updates  chan Update
}

// NewSession builds a session. Defaults are filled in here so the
// zero-config path runs the real tool.
func NewSession(cfg Config) *Session {
	if cfg.Policy == nil {
		cfg.Policy = DefaultBackoff()
	}
	if cfg.Limiter == nil {
		// Whatever the policy says, never more than a handful of
		// respawns in short order.
		cfg.Limiter = rate.NewLimiter(rate.Every(10*time.Second), 3)
	}
	if cfg.Spawn == nil {
		loginPath := sync.OnceValue(ptysession.ResolveLoginPath)
		name := cfg.ToolName
		cfg.Spawn = func() (Child, error) {
			cmd, err := ptysession.LocateTool(name, loginPath())
			if err != nil {
				return nil, err
			}
			return ptysession.Open(ptysession.Options{Command: cmd, Path: loginPath()})
		}
		if cfg.Resolvable == nil {
			cfg.Resolvable = func() bool {
				return ptysession.Resolvable(name, loginPath())
			}
		}
	}
	return &Session{
		cfg:     cfg,
		limiter: cfg.Limiter,
		status:  StatusIdle,
		updates: make(chan Update, 16),
	}
}

// Start spawns the child and begins the query cycle. A spawn failure
// here is returned to the caller; the restart machinery only covers
// exits after a successful start.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("telemetry: session closed")
	}
	if s.child != nil {
		return fmt.Errorf("telemetry: session already started")
	}
	return s.startLocked()
}

// startLocked spawns a child and attaches the per-generation stack.
func (s *Session) startLocked() error {
	child, err := s.cfg.Spawn()
	if err != nil {
		return fmt.Errorf("telemetry: spawn: %w", err)
	}

	s.gen++
	s.child = child
	s.spawnedAt = time.Now()
	if s.cfg.Registry != nil {
		s.cfg.Registry.Register(child.Pid(), s.cfg.ToolName)
	}

	s.buf = textbuf.NewBuffer(s.cfg.BufferCap, s.cfg.Settle, s.bufferSettled)
	s.inject = NewInjector(childWriter{child}, nil)
	s.sched = NewScheduler(s.cfg.Scheduler, s.inject, s.buf.Reset, s.publishSnapshot, s.publishStatus)

	ptysession.NewReader(child, s.buf).Start()
	s.sched.Start()
	go s.watchExit(child, s.gen)

	telLog.Info("session_started",
		slog.String("tool", s.cfg.ToolName),
		slog.Int("pid", child.Pid()),
		slog.Int("generation", s.gen))
	return nil
}

// watchExit reaps the child and drives the restart decision. One watch
// runs per generation; a watch that outlives its generation (explicit
// Close raced the exit) does nothing.
func (s *Session) watchExit(child Child, gen int) {
	err := child.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}

	if err != nil {
		telLog.Warn("child_exited", slog.Int("pid", child.Pid()), slog.String("error", err.Error()))
	} else {
		telLog.Info("child_exited", slog.Int("pid", child.Pid()))
	}

	s.teardownLocked(child)
	// Consumers see monitoring stop immediately, not at the next poll.
	s.publishSnapshot(usage.Snapshot{})
	s.publishStatus(StatusIdle)

	// A child that held up this long was healthy; the exit starts a
	// fresh failure streak rather than extending an old one.
	if time.Since(s.spawnedAt) >= stableUptime {
		s.failures = 0
	}
	s.scheduleRestartLocked()
}

// stableUptime is how long a child must survive before its eventual
// exit stops counting toward the consecutive-failure streak.
const stableUptime = time.Minute

// bufferSettled routes settle callbacks to the current generation's
// scheduler. The buffer and scheduler are replaced together under the
// lock, so a settle can never cross generations.
func (s *Session) bufferSettled(text string) {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched != nil {
		sched.BufferSettled(text)
	}
}

// teardownLocked detaches the dead generation. The scheduler stops
// first so no timer fires into a torn-down session; closing the master
// unblocks the reader.
func (s *Session) teardownLocked(child Child) {
	if s.sched != nil {
		s.sched.Stop()
		s.sched = nil
	}
	if s.buf != nil {
		s.buf.Close()
		s.buf = nil
	}
	if s.cfg.Registry != nil {
		s.cfg.Registry.Unregister(child.Pid())
	}
	child.CloseMaster()
	s.child = nil
	s.inject = nil
}

// scheduleRestartLocked arms the next spawn attempt, or gives up when
// the policy, the rate guard, or executable resolution says no.
func (s *Session) scheduleRestartLocked() {
	s.failures++

	delay, ok := s.cfg.Policy.NextDelay(s.failures)
	if !ok {
		telLog.Error("restart_abandoned", slog.Int("failures", s.failures))
		return
	}
	if !s.limiter.Allow() {
		telLog.Error("restart_rate_limited", slog.Int("failures", s.failures))
		return
	}
	if s.cfg.Resolvable != nil && !s.cfg.Resolvable() {
		telLog.Warn("restart_skipped_unresolvable", slog.String("tool", s.cfg.ToolName))
		return
	}

	telLog.Info("restart_scheduled",
		slog.Duration("delay", delay),
		slog.Int("attempt", s.failures))
	s.restartTimer = time.AfterFunc(delay, s.tryRestart)
}

func (s *Session) tryRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.child != nil {
		return
	}
	if err := s.startLocked(); err != nil {
		telLog.Warn("restart_failed", slog.String("error", err.Error()))
		s.scheduleRestartLocked()
	}
}

// Close tears the session down in a fixed order: stop the scheduler's
// poll and retry timers, type a best-effort quit into the child, close
// the master to cancel the pending read, SIGTERM the child if the quit
// did not land, unregister the pid, and finally make sure the master
// is closed exactly once. Idempotent; racing the exit watch is safe
// because both paths tolerate the other having run.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	child := s.child
	sched := s.sched
	buf := s.buf
	inject := s.inject
	s.child = nil
	s.sched = nil
	s.buf = nil
	s.inject = nil
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if buf != nil {
		buf.Close()
	}
	if child == nil {
		return
	}

	if inject != nil {
		// Best effort; the child may already be gone.
		_ = inject.SendGracefulExit()
	}
	child.CloseMaster()
	child.Terminate()
	if s.cfg.Registry != nil {
		s.cfg.Registry.Unregister(child.Pid())
	}
	// Double close is a no-op; this is the "exactly once" guarantee,
	// not a second close.
	child.CloseMaster()

	telLog.Info("session_closed", slog.String("tool", s.cfg.ToolName))
}

// TriggerNow asks the scheduler to start a query cycle immediately
// instead of waiting out the warm-up or poll interval.
func (s *Session) TriggerNow() {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched != nil {
		sched.TriggerNow()
	}
}

// Snapshot returns the latest published snapshot and status.
func (s *Session) Snapshot() (usage.Snapshot, FetchStatus) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.snapshot, s.status
}

// Updates exposes the published update stream. The channel is never
// closed; a slow consumer loses intermediate updates, never the
// ability to read the latest.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

func (s *Session) publishSnapshot(snap usage.Snapshot) {
	s.pubMu.Lock()
	s.snapshot = snap
	s.pubMu.Unlock()
}

func (s *Session) publishStatus(st FetchStatus) {
	s.pubMu.Lock()
	s.status = st
	up := Update{Snapshot: s.snapshot, Status: st, At: time.Now()}
	s.pubMu.Unlock()

	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(up)
	}
	select {
	case s.updates <- up:
	default:
		// Drop the oldest so the latest always fits.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- up:
		default:
		}
	}
}

// childWriter adapts Child's error-only write to io.Writer for the
// injector.
type childWriter struct{ c Child }

func (w childWriter) Write(p []byte) (int, error) {
	if err := w.c.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
