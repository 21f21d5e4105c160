// Package uirender renders volctl's terminal output: styled tables
// and trees for ls/stat/branch-list, a markdown renderer for longer
// diagnostic text, and confirmation prompts for destructive
// operations. It is grounded on the teacher's internal/ui package
// (terminal.go's TTY/color detection, table.go's lipgloss table
// style, prompts.go's yes/no prompt shape), generalized from Beads
// issue tables to namespace/branch/audit rendering and upgraded from
// a hand-rolled fmt.Scanln prompt to github.com/charmbracelet/huh,
// since the teacher's go.mod already carries huh, glamour and termenv
// without using them anywhere in the pruned pack.
package uirender

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var profile = termenv.ColorProfile()

// Accent, Warn, Pass, and Muted are the four semantic colors volctl's
// renderers use, expressed as termenv colors so Style can adapt them
// to the detected color profile.
var (
	Accent = profile.Color("39")  // blue: branch names, headers
	Warn   = profile.Color("214") // amber: denied/quota-exceeded rows
	Pass   = profile.Color("34")  // green: allow/transform rows
	Muted  = profile.Color("240") // gray: borders, hints
)

// IsTerminal reports whether stdout is connected to a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR / CLICOLOR conventions the
// teacher's ShouldUseColor implements, falling back to TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return IsTerminal()
}

// Width returns the terminal width, or 80 if it cannot be determined
// (piped output, non-TTY).
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
