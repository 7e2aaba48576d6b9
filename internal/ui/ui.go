// Package ui styles command line output.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 100

// Setup picks the color profile for out. Colors are disabled when out is not
// a terminal, when NO_COLOR is set, or when plain is true.
func Setup(out *os.File, plain bool) {
	if plain || os.Getenv("NO_COLOR") != "" || !IsTerminal(out) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the width of the terminal behind f.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return DefaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// Title renders a heading.
func Title(s string) string { return titleStyle.Render(s) }

// Accent renders an identifier.
func Accent(s string) string { return accentStyle.Render(s) }

// Muted renders secondary information.
func Muted(s string) string { return mutedStyle.Render(s) }

// Success renders a confirmation line.
func Success(s string) string { return successStyle.Render("✔ " + s) }

// Warn renders a warning line.
func Warn(s string) string { return warnStyle.Render("! " + s) }

// Error renders an error line.
func Error(s string) string { return errorStyle.Render("✖ " + s) }

// Panel renders lines inside a rounded box.
func Panel(lines []string) string {
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// Truncate shortens s to width cells, marking the cut with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
