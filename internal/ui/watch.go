// Package ui renders the live telemetry panel.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/twistedxcom/termscope/internal/telemetry"
	"github.com/twistedxcom/termscope/internal/usage"
)

const (
	barWidth   = 30
	labelWidth = 18
)

// updateMsg carries one telemetry update into the bubbletea loop.
type updateMsg telemetry.Update

// WatchModel is the live usage panel: three percentage bars fed by the
// background session's update stream.
type WatchModel struct {
	updates <-chan telemetry.Update

	spinner   spinner.Model
	snapshot  usage.Snapshot
	status    telemetry.FetchStatus
	updatedAt time.Time
	width     int
	quitting  bool
}

// NewWatchModel builds the panel over a session's update stream.
func NewWatchModel(updates <-chan telemetry.Update) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorCyan)
	return WatchModel{
		updates: updates,
		spinner: sp,
		status:  telemetry.StatusIdle,
	}
}

// waitForUpdate blocks on the stream and feeds the next update back in
// as a message.
func waitForUpdate(ch <-chan telemetry.Update) tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-ch)
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case updateMsg:
		m.snapshot = msg.Snapshot
		m.status = msg.Status
		m.updatedAt = msg.At
		return m, waitForUpdate(m.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(ColorTextDim)

	var b strings.Builder
	b.WriteString(headerStyle.Render("Claude Code Usage"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", labelWidth+barWidth+10))
	b.WriteString("\n\n")

	b.WriteString(renderBar("Session", m.snapshot.SessionUsedPct))
	b.WriteString("\n")
	b.WriteString(renderBar("Week (all models)", m.snapshot.WeekAllModelsPct))
	b.WriteString("\n")
	b.WriteString(renderBar("Week (Opus)", m.snapshot.WeekOpusPct))
	b.WriteString("\n\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func (m WatchModel) statusLine() string {
	dimStyle := lipgloss.NewStyle().Foreground(ColorTextDim)

	switch m.status {
	case telemetry.StatusFetching:
		return m.spinner.View() + " fetching usage"
	case telemetry.StatusSuccess:
		return dimStyle.Render("updated " + m.updatedAt.Format("15:04:05"))
	case telemetry.StatusFailed:
		return lipgloss.NewStyle().Foreground(ColorRed).Render("fetch failed, retrying at next poll")
	default:
		return dimStyle.Render("waiting for monitor")
	}
}

// renderBar renders one labeled percentage bar with threshold colors.
func renderBar(label string, pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	labelStyle := lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(ColorTextDim)
	barStyle := lipgloss.NewStyle().Foreground(percentColor(pct))
	pctStyle := lipgloss.NewStyle().Foreground(percentColor(pct)).Bold(true)

	filled := pct * barWidth / 100
	bar := barStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", barWidth-filled))

	padded := label + strings.Repeat(" ", max(0, labelWidth-runewidth.StringWidth(label)))
	return fmt.Sprintf("%s [%s] %s",
		labelStyle.Render(padded),
		bar,
		pctStyle.Render(fmt.Sprintf("%3d%%", pct)),
	)
}
