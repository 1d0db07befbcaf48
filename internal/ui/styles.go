package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Dark Theme - Tokyo Night
var darkColors = struct {
	Text, TextDim, Accent, Cyan lipgloss.Color
	Green, Yellow, Red          lipgloss.Color
}{
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Red:     lipgloss.Color("#f7768e"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = struct {
	Text, TextDim, Accent, Cyan lipgloss.Color
	Green, Yellow, Red          lipgloss.Color
}{
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Red:     lipgloss.Color("#8c4351"),
}

// Active color variables (set by InitTheme)
var (
	ColorText    lipgloss.Color
	ColorTextDim lipgloss.Color
	ColorAccent  lipgloss.Color
	ColorCyan    lipgloss.Color
	ColorGreen   lipgloss.Color
	ColorYellow  lipgloss.Color
	ColorRed     lipgloss.Color
)

// InitTheme sets the active color palette based on theme name.
// Must be called before any UI rendering.
func InitTheme(theme string) {
	c := darkColors
	if theme == string(ThemeLight) {
		c = lightColors
	}
	ColorText = c.Text
	ColorTextDim = c.TextDim
	ColorAccent = c.Accent
	ColorCyan = c.Cyan
	ColorGreen = c.Green
	ColorYellow = c.Yellow
	ColorRed = c.Red
}

func init() {
	InitTheme(string(ThemeDark))
}

// percentColor picks the bar color for a usage percentage.
func percentColor(pct int) lipgloss.Color {
	switch {
	case pct < 60:
		return ColorGreen
	case pct < 80:
		return ColorYellow
	default:
		return ColorRed
	}
}
