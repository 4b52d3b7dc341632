package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"vulnlab"
)

// Palette — cyan accents, signal colors for lifecycle state.
var (
	cyan   = lipgloss.Color("44")
	green  = lipgloss.Color("78")
	red    = lipgloss.Color("203")
	orange = lipgloss.Color("215")
	gray   = lipgloss.Color("245")
	border = lipgloss.Color("240")
)

var (
	AccentStyle  = lipgloss.NewStyle().Foreground(cyan)
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	WarnStyle    = lipgloss.NewStyle().Foreground(orange)
	MutedStyle   = lipgloss.NewStyle().Foreground(gray)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
)

// Inline helpers — styled text without newlines.

func Accent(s string) string { return AccentStyle.Render(s) }
func Bold(s string) string   { return BoldStyle.Render(s) }
func Muted(s string) string  { return MutedStyle.Render(s) }
func Warn(s string) string   { return WarnStyle.Render(s) }

func Bool(v bool) string {
	if v {
		return SuccessStyle.Render("yes")
	}
	return MutedStyle.Render("no")
}

// Status colors an environment status for table cells.
func Status(s vulnlab.Status) string {
	switch s {
	case vulnlab.StatusRunning:
		return SuccessStyle.Render(string(s))
	case vulnlab.StatusStopped:
		return MutedStyle.Render(string(s))
	default:
		return WarnStyle.Render(string(s))
	}
}

// Message helpers — single-line strings, no trailing newline.

func SuccessMsg(format string, a ...any) string {
	return SuccessStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func WarnMsg(format string, a ...any) string {
	return WarnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func ErrorMsg(format string, a ...any) string {
	return ErrorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func InfoMsg(format string, a ...any) string {
	return AccentStyle.Render("»") + " " + fmt.Sprintf(format, a...)
}

// Table renders the environment listing. The identifier column carries the
// accent; other cells stay plain so the status cell's own color stands out.
func Table(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(cyan).
		Bold(true).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	idStyle := cellStyle.Foreground(cyan)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(border)).
		BorderRow(false).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return idStyle
			default:
				return cellStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}
