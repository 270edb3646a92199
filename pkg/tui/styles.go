// Package tui holds the terminal styling shared by the afd CLI surface;
// the interactive command palette itself lives in cmd/afd.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette shared across CLI output: tool listings, call results,
// validator reports, and the palette picker.
var (
	ColorPrimary   = lipgloss.Color("#cc7700")
	ColorSecondary = lipgloss.Color("#5599dd")
	ColorAccent    = lipgloss.Color("#445566")
	ColorPanel     = lipgloss.Color("#555555")
	ColorSurface   = lipgloss.Color("#111111")
	ColorMuted     = lipgloss.Color("#888888")
	ColorWarn      = lipgloss.Color("#aaaa00")
	ColorError     = lipgloss.Color("#cc3333")
	ColorSuccess   = lipgloss.Color("#44aa44")
	ColorText      = lipgloss.Color("#dddddd")
)

var (
	ThickBorder = lipgloss.Border{Left: "┃"}
	WideBorder  = lipgloss.Border{Left: "│"}
)

var (
	PrimaryText   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	SecondaryText = lipgloss.NewStyle().Bold(true).Foreground(ColorSecondary)
	MutedText     = lipgloss.NewStyle().Foreground(ColorMuted)
	WarnText      = lipgloss.NewStyle().Bold(true).Foreground(ColorWarn)
	ErrorText     = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	SuccessText   = lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess)
	NormalText    = lipgloss.NewStyle().Foreground(ColorText)
)

// ToolRowStyle renders one row of `afd tools`.
var ToolRowStyle = lipgloss.NewStyle().
	Border(WideBorder).
	BorderLeft(true).BorderTop(false).BorderBottom(false).BorderRight(false).
	BorderForeground(ColorPanel).
	PaddingLeft(1)

const (
	BrandName = "afd"
)

// Banner returns a one-line startup banner for the MCP server and CLI.
func Banner(version string) string {
	name := PrimaryText.Render(BrandName)
	ver := MutedText.Render(version)
	return strings.TrimSpace(name + " " + ver)
}

// TerminalWidth returns the current terminal width, defaulting to 80 when it
// cannot be determined (e.g. output is piped).
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// MaxContentWidth caps rendered content at 100 columns.
func MaxContentWidth(termW int) int {
	if termW > 100 {
		return 100
	}
	return termW
}
