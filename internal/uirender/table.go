package uirender

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent).Align(lipgloss.Center)
	warnStyle   = lipgloss.NewStyle().Foreground(Warn)
	passStyle   = lipgloss.NewStyle().Foreground(Pass)
	mutedStyle  = lipgloss.NewStyle().Foreground(Muted)
	borderStyle = lipgloss.NewStyle().Foreground(Muted)
)

// Row is one row of a ListingTable entry, tagged with the verdict
// class uirender should color it by.
type Row struct {
	Cells []string
	Class RowClass
}

// RowClass selects a Row's color, mirroring the Policy Engine's
// Allow/Deny/Transform/Audit verdicts without importing the policy
// package (uirender stays presentation-only).
type RowClass int

const (
	ClassNeutral RowClass = iota
	ClassGood
	ClassWarn
)

// NewListingTable renders headers and rows as a bordered table sized
// to the terminal width, the way the teacher's NewSearchTable does
// for issue search results.
func NewListingTable(headers []string, rows []Row) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Width(Width()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			class := ClassNeutral
			if row >= 0 && row < len(rows) {
				class = rows[row].Class
			}
			switch class {
			case ClassGood:
				return passStyle
			case ClassWarn:
				return warnStyle
			default:
				return lipgloss.NewStyle()
			}
		})
	for _, r := range rows {
		t.Row(r.Cells...)
	}
	return t.Render()
}

// Hint renders a dim, secondary line of text (e.g. "1 branch hidden
// by policy"), matching the teacher's TableHintStyle.
func Hint(s string) string {
	return mutedStyle.Render(s)
}
