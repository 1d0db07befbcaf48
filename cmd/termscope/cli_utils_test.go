package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/termscope/internal/config"
	"github.com/twistedxcom/termscope/internal/statedb"
	"github.com/twistedxcom/termscope/internal/telemetry"
)

func newTestFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("json", false, "")
	fs.Int("limit", 0, "")
	return fs
}

func TestNormalizeArgs_FlagsAfterPositional(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"10", "--json"})
	assert.Equal(t, []string{"--json", "10"}, got)
}

func TestNormalizeArgs_NonBoolFlagKeepsValue(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"pos", "--limit", "5"})
	assert.Equal(t, []string{"--limit", "5", "pos"}, got)
}

func TestNormalizeArgs_EqualsForm(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"pos", "--limit=5"})
	assert.Equal(t, []string{"--limit=5", "pos"}, got)
}

func TestNormalizeArgs_DoubleDashStopsProcessing(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"--json", "--", "--limit"})
	assert.Equal(t, []string{"--json", "--limit"}, got)
}

func TestRestartPolicyFromConfig_Backoff(t *testing.T) {
	policy := restartPolicyFromConfig(config.RestartSettings{})

	bo, ok := policy.(telemetry.ExponentialBackoff)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, bo.Base)
	assert.Equal(t, 300*time.Second, bo.Max)
	assert.Equal(t, 20, bo.MaxAttempts)
}

func TestRestartPolicyFromConfig_Fixed(t *testing.T) {
	policy := restartPolicyFromConfig(config.RestartSettings{
		Policy:       "fixed",
		CooldownSecs: 7,
	})

	fc, ok := policy.(telemetry.FixedCooldown)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, fc.Delay)
}

func TestOpenHistory_Disabled(t *testing.T) {
	t.Setenv("TERMSCOPE_DIR", t.TempDir())

	off := false
	db, err := openHistory(&config.Config{
		History: config.HistorySettings{Enabled: &off},
	})
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestOpenHistory_CreatesAndMigrates(t *testing.T) {
	t.Setenv("TERMSCOPE_DIR", t.TempDir())

	db, err := openHistory(&config.Config{})
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	v, err := db.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestRecordUpdates_SkipsIntermediateStates(t *testing.T) {
	t.Setenv("TERMSCOPE_DIR", t.TempDir())

	db, err := openHistory(&config.Config{})
	require.NoError(t, err)
	defer db.Close()

	record := recordUpdates(db)
	record(telemetry.Update{Status: telemetry.StatusFetching, At: time.Now()})
	record(telemetry.Update{Status: telemetry.StatusIdle, At: time.Now()})

	empty, err := db.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	record(telemetry.Update{Status: telemetry.StatusSuccess, At: time.Now()})
	empty, err = db.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestRecordUpdates_NilDB(t *testing.T) {
	assert.Nil(t, recordUpdates(nil))
}

func TestFormatSnapshotLine(t *testing.T) {
	line := formatSnapshotLine(statedb.SnapshotRow{
		TakenAt:     time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC),
		SessionPct:  3,
		WeekAllPct:  12,
		WeekOpusPct: 45,
		Status:      "success",
	})
	assert.Contains(t, line, "2026-08-25 14:30:05")
	assert.Contains(t, line, "3%")
	assert.Contains(t, line, "12%")
	assert.Contains(t, line, "45%")
	assert.Contains(t, line, "success")
}

func TestMonitoringChanged(t *testing.T) {
	base := &config.Config{}

	same := &config.Config{}
	assert.False(t, monitoringChanged(base, same))

	tool := &config.Config{Tool: config.ToolSettings{Command: "other"}}
	assert.True(t, monitoringChanged(base, tool))

	poll := &config.Config{Telemetry: config.TelemetrySettings{PollIntervalSecs: 60}}
	assert.True(t, monitoringChanged(base, poll))

	logsOnly := &config.Config{Logs: config.LogSettings{Level: "debug"}}
	assert.False(t, monitoringChanged(base, logsOnly))
}

func TestBuildSession_DoesNotSpawn(t *testing.T) {
	cfg := &config.Config{}
	sess := buildSession(cfg, nil, nil)
	require.NotNil(t, sess)

	snap, status := sess.Snapshot()
	assert.Zero(t, snap)
	assert.Equal(t, telemetry.StatusIdle, status)
}
