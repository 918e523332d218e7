// Package ui renders command output for terminals.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	renderer = lipgloss.NewRenderer(os.Stdout)

	accentStyle = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#005fd7", Dark: "#5fafff"})
	passStyle   = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#008700", Dark: "#5fd75f"})
	warnStyle   = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#af5f00", Dark: "#ffaf00"})
	failStyle   = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#d70000", Dark: "#ff5f5f"}).Bold(true)
	mutedStyle  = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#767676", Dark: "#8a8a8a"})
	headerStyle = renderer.NewStyle().Bold(true)
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SetOutput points rendering at w. Writers that are not terminals, and any
// writer when NO_COLOR is set, get plain text.
func SetOutput(w io.Writer) {
	renderer.SetOutput(termenv.NewOutput(w))
	if f, ok := w.(*os.File); !ok || !IsTerminal(f) || os.Getenv("NO_COLOR") != "" {
		renderer.SetColorProfile(termenv.Ascii)
	}
}

// Plain disables styling.
func Plain() {
	renderer.SetColorProfile(termenv.Ascii)
}

// RenderAccent highlights neutral information.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass marks success.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn marks something that needs attention.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail marks an error.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted de-emphasizes detail lines.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderHeader styles a section title.
func RenderHeader(s string) string { return headerStyle.Render(s) }
