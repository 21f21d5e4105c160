package uirender

import (
	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders markdown-formatted text (volctl branch-merge's
// conflict changelog) for terminal display, falling back to the raw source if glamour cannot build a
// renderer for the detected color profile.
func RenderMarkdown(source string) string {
	style := "dark"
	if !ShouldUseColor() {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(Width()),
	)
	if err != nil {
		return source
	}
	out, err := r.Render(source)
	if err != nil {
		return source
	}
	return out
}
