package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	HeaderColor      tcell.Color
	OwnColor         tcell.Color
	PeerColor        tcell.Color
	CursorBg         tcell.Color
	SelectedColor    tcell.Color
	EditingColor     tcell.Color
	MenuKeyColor     tcell.Color
	FlashInfoColor   tcell.Color
	FlashErrColor    tcell.Color
	StateOKColor     tcell.Color
	StateWarnColor   tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorFuchsia,
		HeaderColor:      tcell.ColorPapayaWhip,
		OwnColor:         tcell.ColorAqua,
		PeerColor:        tcell.ColorWhite,
		CursorBg:         tcell.ColorDarkSlateGray,
		SelectedColor:    tcell.ColorOrange,
		EditingColor:     tcell.ColorFuchsia,
		MenuKeyColor:     tcell.ColorDodgerBlue,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashErrColor:    tcell.ColorOrangeRed,
		StateOKColor:     tcell.ColorGreen,
		StateWarnColor:   tcell.ColorOrange,
	}
}

// Tag returns c as a tview color tag value, e.g. "#ffa500".
func Tag(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
