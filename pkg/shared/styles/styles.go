// Package styles holds the terminal styles shared by list output.
package styles

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	Title  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#25A065")).Padding(0, 1)
	Label  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0AF"))
	Muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	Accent = lipgloss.NewStyle().Foreground(lipgloss.Color("#EE6FF8"))
	Status = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"})
)

// Highlight styles highlight labels in the configured highlight colour.
func Highlight(color string) lipgloss.Style {
	if color == "" {
		return Label
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
}

// Configure disables colour when noColor is set or NO_COLOR is present.
func Configure(noColor bool) {
	if _, set := os.LookupEnv("NO_COLOR"); noColor || set {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
