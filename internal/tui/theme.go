package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Theme holds the colors used across the UI.
type Theme struct {
	Background    tcell.Color
	Foreground    tcell.Color
	SecondaryText tcell.Color
	HeaderBg      tcell.Color
	Border        tcell.Color
	Accent        tcell.Color
	SelectionBg   tcell.Color
	Success       tcell.Color
	Warning       tcell.Color
	Error         tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() Theme {
	return Theme{
		Background:    tcell.NewHexColor(0x1a1b26),
		Foreground:    tcell.NewHexColor(0xc0caf5),
		SecondaryText: tcell.NewHexColor(0x787c99),
		HeaderBg:      tcell.NewHexColor(0x24283b),
		Border:        tcell.NewHexColor(0x3b4261),
		Accent:        tcell.NewHexColor(0x7aa2f7),
		SelectionBg:   tcell.NewHexColor(0x364a82),
		Success:       tcell.NewHexColor(0x9ece6a),
		Warning:       tcell.NewHexColor(0xe0af68),
		Error:         tcell.NewHexColor(0xf7768e),
	}
}

// ThemeTags are tview color tags for a Theme, for use in dynamic-color
// text.
type ThemeTags struct {
	Foreground    string
	SecondaryText string
	Border        string
	Accent        string
	Success       string
	Warning       string
	Error         string
}

// NewThemeTags builds the color tags for theme.
func NewThemeTags(theme Theme) ThemeTags {
	return ThemeTags{
		Foreground:    colorTag(theme.Foreground),
		SecondaryText: colorTag(theme.SecondaryText),
		Border:        colorTag(theme.Border),
		Accent:        colorTag(theme.Accent),
		Success:       colorTag(theme.Success),
		Warning:       colorTag(theme.Warning),
		Error:         colorTag(theme.Error),
	}
}

func colorTag(c tcell.Color) string {
	return fmt.Sprintf("[#%06x]", c.Hex())
}

func (a *App) applyThemeStyles() {
	tview.Styles.PrimitiveBackgroundColor = a.theme.Background
	tview.Styles.ContrastBackgroundColor = a.theme.HeaderBg
	tview.Styles.MoreContrastBackgroundColor = a.theme.SelectionBg
	tview.Styles.BorderColor = a.theme.Border
	tview.Styles.TitleColor = a.theme.Foreground
	tview.Styles.GraphicsColor = a.theme.Border
	tview.Styles.PrimaryTextColor = a.theme.Foreground
	tview.Styles.SecondaryTextColor = a.theme.SecondaryText
	tview.Styles.TertiaryTextColor = a.theme.SecondaryText
	tview.Styles.InverseTextColor = a.theme.Background
	tview.Styles.ContrastSecondaryTextColor = a.theme.SecondaryText
}
