// Package console provides terminal output styling for the CLI.
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Good    lipgloss.Color // Success states
	Warn    lipgloss.Color // Warnings
	Bad     lipgloss.Color // Errors
	Dim     lipgloss.Color // Help/secondary text
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Good:    lipgloss.Color("#3fb950"),
	Warn:    lipgloss.Color("#d29922"),
	Bad:     lipgloss.Color("#f85149"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Good    lipgloss.Style
	Warn    lipgloss.Style
	Bad     lipgloss.Style
	Help    lipgloss.Style
	Border  lipgloss.Style
	Banner  lipgloss.Style
	BarFill lipgloss.Style
	BarHot  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Value:   lipgloss.NewStyle(),
		Good:    lipgloss.NewStyle().Foreground(t.Good),
		Warn:    lipgloss.NewStyle().Foreground(t.Warn),
		Bad:     lipgloss.NewStyle().Foreground(t.Bad),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
		Border:  lipgloss.NewStyle().Foreground(t.Primary),
		Banner:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 2),
		BarFill: lipgloss.NewStyle().Foreground(t.Good),
		BarHot:  lipgloss.NewStyle().Foreground(t.Warn),
	}
}

// Default is the package-wide style set used by the CLI commands.
var Default = NewStyles(DefaultTheme)

// Header renders a section header line.
func (s Styles) Header(title string) string {
	return s.Title.Render(title)
}

// KV renders an aligned "label: value" line.
func (s Styles) KV(label, value string) string {
	return fmt.Sprintf("  %s %s", s.Label.Render(label+":"), s.Value.Render(value))
}

// OK renders a success line with a check mark.
func (s Styles) OK(msg string) string {
	return s.Good.Render("✓ " + msg)
}

// Warning renders a warning line.
func (s Styles) Warning(msg string) string {
	return s.Warn.Render("! " + msg)
}

// Fail renders an error line.
func (s Styles) Fail(msg string) string {
	return s.Bad.Render("✗ " + msg)
}

// DetectionBanner renders the boxed banner shown when the wake word fires.
func (s Styles) DetectionBanner(model string, confidence float32) string {
	return s.Banner.Render(fmt.Sprintf("Wake word detected: %s (%.2f)", model, confidence))
}

// LevelBar renders a live microphone level meter. level is a normalized
// amplitude in [0, 1]; the bar turns warning-colored near clipping.
func (s Styles) LevelBar(level float64, width int) string {
	if width <= 0 {
		width = 40
	}
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	style := s.BarFill
	if level > 0.85 {
		style = s.BarHot
	}
	return style.Render(bar) + s.Help.Render(fmt.Sprintf(" %3.0f%%", level*100))
}

// Panel renders a titled box around body text.
func (s Styles) Panel(title, body string) string {
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	width := lipgloss.Width(title) + 4
	for _, l := range lines {
		if w := lipgloss.Width(l) + 4; w > width {
			width = w
		}
	}

	var b strings.Builder
	labelText := s.Label.Render(title)
	b.WriteString(s.Border.Render("╭─") + labelText +
		s.Border.Render(strings.Repeat("─", max(0, width-3-lipgloss.Width(labelText)))+"╮") + "\n")
	for _, l := range lines {
		pad := max(0, width-4-lipgloss.Width(l))
		b.WriteString(s.Border.Render("│") + " " + l + strings.Repeat(" ", pad) + " " + s.Border.Render("│") + "\n")
	}
	b.WriteString(s.Border.Render("╰" + strings.Repeat("─", width-2) + "╯"))
	return b.String()
}
