package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/termscope/internal/ansi"
	"github.com/twistedxcom/termscope/internal/telemetry"
	"github.com/twistedxcom/termscope/internal/usage"
)

func TestRenderBar(t *testing.T) {
	plain := ansi.Strip(renderBar("Session", 50))
	assert.Contains(t, plain, "Session")
	assert.Contains(t, plain, "50%")
	assert.Contains(t, plain, "█")
	assert.Contains(t, plain, "░")

	full := ansi.Strip(renderBar("Session", 100))
	assert.Contains(t, full, "100%")
	assert.NotContains(t, full, "░")

	clamped := ansi.Strip(renderBar("Session", 250))
	assert.Contains(t, clamped, "100%")
}

func TestWatchModel_UpdateStoresSnapshot(t *testing.T) {
	ch := make(chan telemetry.Update, 1)
	m := NewWatchModel(ch)

	next, _ := m.Update(updateMsg(telemetry.Update{
		Snapshot: usage.Snapshot{SessionUsedPct: 3, WeekAllModelsPct: 12, WeekOpusPct: 45},
		Status:   telemetry.StatusSuccess,
		At:       time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC),
	}))
	model, ok := next.(WatchModel)
	require.True(t, ok)

	view := ansi.Strip(model.View())
	assert.Contains(t, view, "3%")
	assert.Contains(t, view, "12%")
	assert.Contains(t, view, "45%")
	assert.Contains(t, view, "updated 14:30:05")
}

func TestWatchModel_IdleView(t *testing.T) {
	m := NewWatchModel(make(chan telemetry.Update))

	view := ansi.Strip(m.View())
	assert.Contains(t, view, "waiting for monitor")
	assert.Contains(t, view, "Session")
	assert.Contains(t, view, "0%")
}

func TestWatchModel_FailedView(t *testing.T) {
	m := NewWatchModel(make(chan telemetry.Update))
	next, _ := m.Update(updateMsg(telemetry.Update{Status: telemetry.StatusFailed}))
	model := next.(WatchModel)

	view := ansi.Strip(model.View())
	assert.Contains(t, view, "fetch failed")
}

func TestWatchModel_QuitKeys(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	}
	for _, key := range keys {
		m := NewWatchModel(make(chan telemetry.Update))
		next, cmd := m.Update(key)
		require.NotNil(t, cmd, "quit command expected for %q", key.String())
		assert.Equal(t, "", next.(WatchModel).View())
	}
}
