package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorRed       = lipgloss.Color("#EB3349")
	ColorGreen     = lipgloss.Color("#98C379")
	ColorBlue      = lipgloss.Color("#61AFEF")
	ColorMagenta   = lipgloss.Color("#C678DD")
	ColorYellow    = lipgloss.Color("#E5C07B")
	ColorBorder    = lipgloss.Color("#3F4451")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	SubTextStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)

	MiniTextStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	LinkStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Underline(true)

	ButtonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGreen).
			Foreground(ColorGreen).
			Bold(true).
			Padding(0, 2)

	DisabledButtonStyle = ButtonStyle.
				BorderForeground(ColorBorder).
				Foreground(ColorFgMuted).
				Bold(false)

	CountStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary).
			Bold(true)

	SoldOutStyle = CountStyle.
			Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorYellow).
			PaddingLeft(1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	ContainerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)
