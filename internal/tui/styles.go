package tui

import "github.com/charmbracelet/lipgloss"

// One Dark Pro color palette
var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorFgComment = lipgloss.Color("#5C6370")

	ColorRed     = lipgloss.Color("#E06C75")
	ColorGreen   = lipgloss.Color("#98C379")
	ColorYellow  = lipgloss.Color("#E5C07B")
	ColorBlue    = lipgloss.Color("#61AFEF")
	ColorMagenta = lipgloss.Color("#C678DD")
	ColorCyan    = lipgloss.Color("#56B6C2")

	ColorBorder = lipgloss.Color("#3F4451")
)

// Component styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true).
			PaddingLeft(1)

	PositionStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	ModeStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	PaneTitleStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	MetadataStyle = lipgloss.NewStyle().
			Foreground(ColorFgComment).
			PaddingLeft(1)

	AcceptedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	RejectedStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	UnannotatedStyle = lipgloss.NewStyle().
				Foreground(ColorFgMuted)

	FinalStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			PaddingLeft(1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			PaddingLeft(1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			PaddingLeft(1)

	CursorStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FormTitleStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true).
			PaddingLeft(1)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)
)
