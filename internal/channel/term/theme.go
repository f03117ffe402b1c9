package term

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"nudge/internal/templates"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	colorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	colorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

type palette struct {
	theme string
}

func paletteFor(theme string) palette {
	return palette{theme: strings.ToLower(strings.TrimSpace(theme))}
}

// color resolves an adaptive pair for an explicit light/dark theme.
func (p palette) color(c lipgloss.AdaptiveColor) lipgloss.TerminalColor {
	switch p.theme {
	case "dark":
		return lipgloss.Color(c.Dark)
	case "light":
		return lipgloss.Color(c.Light)
	default:
		return c
	}
}

func (p palette) accent(level templates.Level, priority int) lipgloss.TerminalColor {
	if priority >= templates.PriorityCritical {
		return p.color(colorRed)
	}
	switch level {
	case templates.LevelToast:
		return p.color(colorBlue)
	case templates.LevelPopup:
		return p.color(colorMagenta)
	case templates.LevelModal:
		return p.color(colorRed)
	case templates.LevelBanner:
		return p.color(colorYellow)
	default:
		return p.color(colorGray)
	}
}

func (p palette) box(level templates.Level, priority int) lipgloss.Style {
	border := lipgloss.RoundedBorder()
	if level == templates.LevelModal {
		border = lipgloss.DoubleBorder()
	}
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(p.accent(level, priority)).
		Padding(0, 1)
}

func (p palette) title() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(p.color(colorWhite))
}

func (p palette) subtle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(p.color(colorGray)).Italic(true)
}

func (p palette) button(primary bool) lipgloss.Style {
	s := lipgloss.NewStyle().Padding(0, 1)
	if primary {
		return s.Bold(true).Foreground(p.color(colorGreen))
	}
	return s.Foreground(p.color(colorGray))
}
