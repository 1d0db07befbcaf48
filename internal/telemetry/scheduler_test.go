package telemetry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/termscope/internal/usage"
)

const panelText = `Settings

Current session
█████░░░░░░░░░░░ 3% used
Resets 2:30pm

Current week (all models)
██░░░░░░░░░░░░░░ 12% used

Current week (Opus only)
███████░░░░░░░░░ 45% used
`

type fakeInjector struct {
	queries atomic.Int32
	exits   atomic.Int32
}

func (f *fakeInjector) SendUsageQuery() error   { f.queries.Add(1); return nil }
func (f *fakeInjector) SendGracefulExit() error { f.exits.Add(1); return nil }

type schedObserver struct {
	mu        sync.Mutex
	statuses  []FetchStatus
	snapshots []usage.Snapshot
	resets    int
	statusCh  chan FetchStatus
}

func newSchedObserver() *schedObserver {
	return &schedObserver{statusCh: make(chan FetchStatus, 32)}
}

func (o *schedObserver) onStatus(st FetchStatus) {
	o.mu.Lock()
	o.statuses = append(o.statuses, st)
	o.mu.Unlock()
	o.statusCh <- st
}

func (o *schedObserver) onSnapshot(s usage.Snapshot) {
	o.mu.Lock()
	o.snapshots = append(o.snapshots, s)
	o.mu.Unlock()
}

func (o *schedObserver) onReset() {
	o.mu.Lock()
	o.resets++
	o.mu.Unlock()
}

func (o *schedObserver) waitStatus(t *testing.T, want FetchStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case st := <-o.statusCh:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("status %v never observed", want)
		}
	}
}

func newTestScheduler(cfg SchedulerConfig) (*Scheduler, *fakeInjector, *schedObserver) {
	inj := &fakeInjector{}
	obs := newSchedObserver()
	s := NewScheduler(cfg, inj, obs.onReset, obs.onSnapshot, obs.onStatus)
	return s, inj, obs
}

func TestScheduler_SuccessfulCycle(t *testing.T) {
	s, inj, obs := newTestScheduler(SchedulerConfig{
		Warmup:        10 * time.Millisecond,
		AttemptWindow: time.Second,
		MaxAttempts:   3,
		PollInterval:  time.Hour,
	})
	s.Start()
	defer s.Stop()

	obs.waitStatus(t, StatusFetching, time.Second)
	assert.Equal(t, int32(1), inj.queries.Load())

	s.BufferSettled(panelText)
	obs.waitStatus(t, StatusSuccess, time.Second)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.snapshots, 1)
	assert.Equal(t, usage.Snapshot{SessionUsedPct: 3, WeekAllModelsPct: 12, WeekOpusPct: 45}, obs.snapshots[0])
	assert.Equal(t, 1, obs.resets, "buffer cleared once per cycle")
}

func TestScheduler_RetryExhaustionInjectsOnce(t *testing.T) {
	s, inj, obs := newTestScheduler(SchedulerConfig{
		Warmup:        5 * time.Millisecond,
		AttemptWindow: 20 * time.Millisecond,
		MaxAttempts:   3,
		PollInterval:  time.Hour,
	})
	s.Start()
	defer s.Stop()

	obs.waitStatus(t, StatusFailed, 2*time.Second)

	// All three attempt windows elapsed yet the command was only
	// typed at cycle start.
	assert.Equal(t, int32(1), inj.queries.Load())
}

func TestScheduler_LateSettleWithinRetryWindow(t *testing.T) {
	s, _, obs := newTestScheduler(SchedulerConfig{
		Warmup:        5 * time.Millisecond,
		AttemptWindow: 40 * time.Millisecond,
		MaxAttempts:   3,
		PollInterval:  time.Hour,
	})
	s.Start()
	defer s.Stop()

	obs.waitStatus(t, StatusFetching, time.Second)
	// Panel lands during the second attempt window.
	time.Sleep(60 * time.Millisecond)
	s.BufferSettled(panelText)

	obs.waitStatus(t, StatusSuccess, time.Second)
}

func TestScheduler_PollStartsNextCycle(t *testing.T) {
	s, inj, obs := newTestScheduler(SchedulerConfig{
		Warmup:        5 * time.Millisecond,
		AttemptWindow: time.Second,
		MaxAttempts:   3,
		PollInterval:  30 * time.Millisecond,
	})
	s.Start()
	defer s.Stop()

	obs.waitStatus(t, StatusFetching, time.Second)
	s.BufferSettled(panelText)
	obs.waitStatus(t, StatusSuccess, time.Second)

	// The poll timer re-enters querying, which types the command again.
	obs.waitStatus(t, StatusFetching, time.Second)
	assert.Eventually(t, func() bool { return inj.queries.Load() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestScheduler_SettleWithoutMarkersIgnored(t *testing.T) {
	s, _, obs := newTestScheduler(SchedulerConfig{
		Warmup:        5 * time.Millisecond,
		AttemptWindow: 50 * time.Millisecond,
		MaxAttempts:   2,
		PollInterval:  time.Hour,
	})
	s.Start()
	defer s.Stop()

	obs.waitStatus(t, StatusFetching, time.Second)
	s.BufferSettled("Welcome to Claude Code\nType a message")
	s.BufferSettled("Current session only, no week data")

	obs.waitStatus(t, StatusFailed, 2*time.Second)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Empty(t, obs.snapshots)
}

func TestScheduler_SettleWhilePollingIgnored(t *testing.T) {
	s, _, obs := newTestScheduler(SchedulerConfig{
		Warmup:        5 * time.Millisecond,
		AttemptWindow: time.Second,
		MaxAttempts:   3,
		PollInterval:  time.Hour,
	})
	s.Start()
	defer s.Stop()

	obs.waitStatus(t, StatusFetching, time.Second)
	s.BufferSettled(panelText)
	obs.waitStatus(t, StatusSuccess, time.Second)

	s.BufferSettled(panelText)
	time.Sleep(30 * time.Millisecond)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.snapshots, 1, "stray settle between cycles must not publish")
}

func TestScheduler_StopQuiescesCallbacks(t *testing.T) {
	s, _, obs := newTestScheduler(SchedulerConfig{
		Warmup:        5 * time.Millisecond,
		AttemptWindow: 10 * time.Millisecond,
		MaxAttempts:   3,
		PollInterval:  10 * time.Millisecond,
	})
	s.Start()
	obs.waitStatus(t, StatusFetching, time.Second)

	s.Stop()
	obs.mu.Lock()
	seen := len(obs.statuses)
	obs.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, seen, len(obs.statuses), "no callbacks after Stop returned")

	s.Stop() // second stop is a no-op
}

func TestScheduler_TriggerNow(t *testing.T) {
	s, inj, obs := newTestScheduler(SchedulerConfig{
		Warmup:        time.Hour,
		AttemptWindow: time.Second,
		MaxAttempts:   3,
		PollInterval:  time.Hour,
	})
	s.Start()
	defer s.Stop()

	s.TriggerNow()
	obs.waitStatus(t, StatusFetching, time.Second)
	assert.Equal(t, int32(1), inj.queries.Load())
}
