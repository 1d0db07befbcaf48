package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/usage"
)

var telLog = logging.ForComponent(logging.CompTelemetry)

// Scheduling defaults. The warm-up covers the tool's TUI startup; the
// attempt window covers one slow panel render; the poll interval keeps
// the telemetry fresh without hammering the child.
const (
	DefaultWarmup        = 8 * time.Second
	DefaultAttemptWindow = 15 * time.Second
	DefaultMaxAttempts   = 3
	DefaultPollInterval  = 300 * time.Second
)

// SchedulerConfig tunes the query cycle. Zero values take the defaults
// above; tests shrink everything to milliseconds.
type SchedulerConfig struct {
	Warmup        time.Duration
	AttemptWindow time.Duration
	MaxAttempts   int
	PollInterval  time.Duration
}

func (c *SchedulerConfig) withDefaults() {
	if c.Warmup <= 0 {
		c.Warmup = DefaultWarmup
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = DefaultAttemptWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

type schedState int

const (
	stateIdle schedState = iota
	stateQuerying
	statePolling
)

type eventKind int

const (
	evCycleDue eventKind = iota
	evWindowElapsed
	evSettled
)

type schedEvent struct {
	kind eventKind
	text string // settled buffer snapshot, evSettled only
}

// Scheduler drives the query protocol as an explicit state machine:
// idle until warm-up, then querying (inject once, wait for the panel
// across bounded attempt windows), then polling until the next cycle.
// All state lives on the loop goroutine; timers and the buffer's
// settle callback communicate through the event channel only.
type Scheduler struct {
	cfg    SchedulerConfig
	inject Injector

	// reset clears the scrape buffer so a cycle never parses the
	// previous panel render.
	reset      func()
	onSnapshot func(usage.Snapshot)
	onStatus   func(FetchStatus)

	events chan schedEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	// Loop-owned; untouched outside run().
	state   schedState
	attempt int
	timer   *time.Timer
}

// NewScheduler wires the cycle. Any of reset/onSnapshot/onStatus may
// be nil.
func NewScheduler(cfg SchedulerConfig, inject Injector, reset func(), onSnapshot func(usage.Snapshot), onStatus func(FetchStatus)) *Scheduler {
	cfg.withDefaults()
	return &Scheduler{
		cfg:        cfg,
		inject:     inject,
		reset:      reset,
		onSnapshot: onSnapshot,
		onStatus:   onStatus,
		events:     make(chan schedEvent, 16),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the loop with the first cycle due after the warm-up.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop ends the loop and waits for it to exit, so no callback fires
// after Stop returns. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// TriggerNow requests an immediate cycle, skipping whatever wait is
// pending. Used by the one-shot fetch path.
func (s *Scheduler) TriggerNow() {
	s.post(schedEvent{kind: evCycleDue})
}

// BufferSettled feeds a settled buffer snapshot into the loop. Called
// from the buffer's timer goroutine; never blocks.
func (s *Scheduler) BufferSettled(text string) {
	s.post(schedEvent{kind: evSettled, text: text})
}

func (s *Scheduler) post(ev schedEvent) {
	select {
	case s.events <- ev:
	case <-s.stop:
	default:
		// Backpressure here means the loop is wedged on a callback;
		// dropping a settle event is safe, another follows.
		logging.Aggregate(logging.CompTelemetry, "event_dropped")
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	s.arm(s.cfg.Warmup, evCycleDue)
	for {
		select {
		case <-s.stop:
			if s.timer != nil {
				s.timer.Stop()
			}
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Scheduler) handle(ev schedEvent) {
	switch ev.kind {
	case evCycleDue:
		s.beginCycle()
	case evWindowElapsed:
		s.windowElapsed()
	case evSettled:
		s.settled(ev.text)
	}
}

func (s *Scheduler) beginCycle() {
	s.state = stateQuerying
	s.attempt = 1
	if s.reset != nil {
		s.reset()
	}
	s.notifyStatus(StatusFetching)

	// Only the first attempt types the command. Re-sending while the
	// panel is mid-render stacks input in the TUI and corrupts it; the
	// later attempt windows just wait for the render to land.
	if err := s.inject.SendUsageQuery(); err != nil {
		telLog.Warn("usage_query_inject_failed", slog.String("error", err.Error()))
	}
	s.arm(s.cfg.AttemptWindow, evWindowElapsed)
}

func (s *Scheduler) windowElapsed() {
	if s.state != stateQuerying {
		return
	}
	if s.attempt >= s.cfg.MaxAttempts {
		telLog.Warn("usage_query_exhausted", slog.Int("attempts", s.attempt))
		s.state = statePolling
		s.notifyStatus(StatusFailed)
		s.arm(s.cfg.PollInterval, evCycleDue)
		return
	}
	s.attempt++
	s.arm(s.cfg.AttemptWindow, evWindowElapsed)
}

func (s *Scheduler) settled(text string) {
	if s.state != stateQuerying {
		return
	}
	if !usage.HasPanelMarkers(text) {
		return
	}
	snap, ok := usage.Parse(text)
	if !ok {
		return
	}

	telLog.Info("usage_panel_parsed",
		slog.Int("session_pct", snap.SessionUsedPct),
		slog.Int("week_all_pct", snap.WeekAllModelsPct),
		slog.Int("attempt", s.attempt))

	s.state = statePolling
	if s.onSnapshot != nil {
		s.onSnapshot(snap)
	}
	s.notifyStatus(StatusSuccess)
	s.arm(s.cfg.PollInterval, evCycleDue)
}

// arm replaces the pending timer. One timer is live at a time; the
// state machine never needs two concurrent waits.
func (s *Scheduler) arm(d time.Duration, kind eventKind) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, func() {
		s.post(schedEvent{kind: kind})
	})
}

func (s *Scheduler) notifyStatus(st FetchStatus) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}
